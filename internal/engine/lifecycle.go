package engine

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"
)

// Start begins a transfer. Requires Idle; anything else is a no-op.
// Validation failures finish synchronously with the error flag set.
func (t *Task) Start() {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return
	}
	t.pauseReason = ""
	t.pausedAt = 0

	activeURL := t.currentURLLocked()
	if !validDownloadURL(activeURL) || strings.TrimSpace(t.filePath) == "" {
		t.anyError = true
		t.state = StateFinished
		t.mu.Unlock()
		t.sink.OnStateChanged(t.id)
		t.sink.OnFinished(t.id, false)
		return
	}

	t.anyError = false
	t.finishing = false
	t.state = StateDownloading
	t.throttle.Reset()
	t.lastSpeedAt = time.Time{}
	t.lastBytes = 0

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.gen++
	gen := t.gen

	hasExistingFile := false
	if info, err := os.Stat(t.filePath); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		hasExistingFile = true
	}
	if info, err := os.Stat(t.filePath + ".part"); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		hasExistingFile = true
	}
	hasPartialSegments := false
	if t.segments > 1 {
		for i := 0; i < t.segments; i++ {
			if _, err := os.Stat(partPath(t.filePath, i)); err == nil {
				hasPartialSegments = true
				break
			}
		}
	}
	t.mu.Unlock()

	t.log.Debug().Str("url", activeURL).Msg("task start")
	t.AppendLog("Start: " + activeURL)
	t.sink.OnStateChanged(t.id)

	t.wg.Add(1)
	go t.run(ctx, gen, activeURL, hasExistingFile, hasPartialSegments)
}

func validDownloadURL(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Pause aborts in-flight exchanges, flushes and closes part files, and
// snapshots the pause time. Safe to call repeatedly.
func (t *Task) Pause() {
	t.mu.Lock()
	if t.state != StateDownloading {
		t.mu.Unlock()
		return
	}
	if t.pauseReason == "" {
		t.pauseReason = "User"
	}
	t.state = StatePaused
	t.pausedAt = time.Now().UnixMilli()
	t.speed = 0
	t.eta = -1
	t.gen++
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait() // transfer goroutines close their own files on the way out

	// Aborted exchanges can leave pooled connections stalled; a fresh
	// client makes the next resume reliable.
	t.mu.Lock()
	t.client.CloseIdleConnections()
	t.client = newClient(t.proxy)
	t.mu.Unlock()

	t.AppendLog("Paused")
	t.sink.OnStateChanged(t.id)
	t.sink.OnSpeed(t.id, 0)
}

// PauseWithReason tags the pause ("Battery", "Schedule", "Quota") before
// pausing.
func (t *Task) PauseWithReason(reason string) {
	t.mu.Lock()
	if t.state != StateDownloading {
		t.mu.Unlock()
		return
	}
	t.pauseReason = reason
	t.mu.Unlock()
	t.Pause()
}

// Resume behaves exactly as a cold start on the current on-disk state;
// in-memory progress from the previous attempt is discarded so disk and
// network can't drift apart.
func (t *Task) Resume() {
	t.mu.Lock()
	if t.state != StatePaused {
		t.mu.Unlock()
		return
	}
	t.pauseReason = ""
	t.state = StateIdle
	t.segs = nil
	t.single = singleState{}
	t.mu.Unlock()

	t.AppendLog("Resumed")
	t.Start()
}

// Cancel aborts and deletes all partial files. Valid in any non-terminal
// state; finalized files from an earlier completion are left alone.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.state == StateFinished || t.state == StateCanceled {
		t.mu.Unlock()
		return
	}
	t.state = StateCanceled
	t.pauseReason = ""
	t.pausedAt = 0
	t.speed = 0
	t.eta = -1
	t.mu.Unlock()

	t.AppendLog("Canceled")
	t.sink.OnStateChanged(t.id)
	t.cleanup(true)
}

// Restart wipes partial state and starts over from byte zero.
func (t *Task) Restart() {
	t.AppendLog("Restart requested")
	t.cleanup(false)
	t.mu.Lock()
	t.state = StateIdle
	t.mu.Unlock()
	t.sink.OnStateChanged(t.id)
	t.Start()
}

// cleanup aborts any in-flight work, removes all partial files, and
// resets transfer counters. When emitFinished is set (cancel path) a
// finished(false) event is delivered afterwards.
func (t *Task) cleanup(emitFinished bool) {
	t.mu.Lock()
	t.gen++
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()

	t.mu.Lock()
	for _, s := range t.segs {
		s.Downloaded = 0
		os.Remove(s.TempPath)
	}
	// Stale parts can outlive the planned slice after a fallback.
	for i := 0; i < t.segments; i++ {
		os.Remove(partPath(t.filePath, i))
	}
	if t.single.path != "" {
		if t.single.useTemp {
			os.Remove(t.single.path)
		} else {
			os.Remove(t.filePath)
		}
	}
	t.single = singleState{}
	t.segs = nil
	// Drop pooled connections; an aborted exchange can leave them stalled.
	t.client.CloseIdleConnections()
	t.client = newClient(t.proxy)
	t.mu.Unlock()

	if emitFinished {
		t.sink.OnFinished(t.id, false)
	}
}

// MarkPaused seeds the Paused state during session restore without
// touching the network. A Downloading task is genuinely paused instead.
func (t *Task) MarkPaused() {
	t.mu.Lock()
	switch t.state {
	case StatePaused:
		t.mu.Unlock()
		return
	case StateDownloading:
		t.mu.Unlock()
		t.Pause()
		return
	case StateFinished, StateCanceled:
		t.mu.Unlock()
		return
	}
	t.state = StatePaused
	if t.pauseReason == "" {
		t.pauseReason = "User"
	}
	if t.pausedAt == 0 {
		t.pausedAt = time.Now().UnixMilli()
	}
	t.speed = 0
	t.eta = -1
	t.mu.Unlock()
	t.sink.OnStateChanged(t.id)
}

// MarkError seeds the terminal error state without emitting finished.
func (t *Task) MarkError() {
	t.mu.Lock()
	if t.state == StateCanceled || (t.state == StateFinished && t.anyError) {
		t.mu.Unlock()
		return
	}
	t.anyError = true
	t.state = StateFinished
	t.speed = 0
	t.eta = -1
	t.pauseReason = ""
	t.mu.Unlock()
	t.sink.OnStateChanged(t.id)
}

// MarkDone seeds the terminal success state without emitting finished.
func (t *Task) MarkDone() {
	t.mu.Lock()
	if t.state == StateCanceled || (t.state == StateFinished && !t.anyError) {
		t.mu.Unlock()
		return
	}
	t.anyError = false
	t.state = StateFinished
	t.speed = 0
	t.eta = -1
	t.pauseReason = ""
	t.mu.Unlock()
	t.sink.OnStateChanged(t.id)
}

// MarkCanceled seeds the Canceled state without emitting finished.
func (t *Task) MarkCanceled() {
	t.mu.Lock()
	if t.state == StateCanceled {
		t.mu.Unlock()
		return
	}
	t.state = StateCanceled
	t.speed = 0
	t.eta = -1
	t.pauseReason = ""
	t.mu.Unlock()
	t.sink.OnStateChanged(t.id)
}
