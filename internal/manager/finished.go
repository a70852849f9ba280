package manager

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/raad-downloader/raad/internal/engine"
	"github.com/raad-downloader/raad/internal/engine/events"
	"github.com/raad-downloader/raad/internal/history"
	"github.com/raad-downloader/raad/internal/utils"
)

// The manager is the event sink for every task it owns. Handlers arrive
// on task goroutines; anything that could pause or wait on the emitting
// task is pushed onto a fresh goroutine.

// OnStateChanged implements events.Sink.
func (m *Manager) OnStateChanged(taskID string) {
	task := m.TaskByID(taskID)
	if task == nil {
		return
	}
	m.model.SetStatus(taskID, task.StateString(), task.State() == engine.StateFinished || task.State() == engine.StateCanceled)
	m.scheduleSave()
}

// OnProgress implements events.Sink. Progress deltas feed the owning
// queue's daily quota; tripping the quota triggers an async enforcement
// pass (synchronous enforcement would deadlock against the emitting
// task's own transfer goroutine).
func (m *Manager) OnProgress(taskID string, received, total int64) {
	m.mu.Lock()
	meta := m.meta[taskID]
	if meta == nil {
		m.mu.Unlock()
		return
	}
	delta := received - meta.lastReceived
	if delta < 0 {
		delta = 0
	}
	meta.lastReceived = received
	meta.received = received
	meta.total = total

	quotaTripped := false
	if info := m.queues[meta.queue]; info != nil {
		info.DownloadedToday += delta
		quotaTripped = quotaExceeded(info)
	}
	m.mu.Unlock()

	m.model.SetProgress(taskID, received, total)
	m.updateTotals()
	if quotaTripped {
		go m.enforcePolicies()
	}
}

// OnSpeed implements events.Sink.
func (m *Manager) OnSpeed(taskID string, bytesPerSec int64) {
	m.mu.Lock()
	meta := m.meta[taskID]
	if meta != nil {
		meta.speed = bytesPerSec
	}
	m.mu.Unlock()
	if meta == nil {
		return
	}
	eta := -1
	if task := m.TaskByID(taskID); task != nil {
		eta = task.ETA()
	}
	m.model.SetSpeed(taskID, bytesPerSec, eta)
	m.updateTotals()
}

// OnFinished implements events.Sink: toast, post actions, history, then
// mirror failover or scheduled retry on error.
func (m *Manager) OnFinished(taskID string, ok bool) {
	m.mu.Lock()
	if m.bulkCancelActive {
		// CancelAll owns container cleanup; per-task handlers stay out.
		m.mu.Unlock()
		return
	}
	task := m.byID[taskID]
	meta := m.meta[taskID]
	if task == nil || meta == nil {
		m.mu.Unlock()
		return
	}
	meta.speed = 0
	meta.completedAt = time.Now().UnixMilli()
	m.mu.Unlock()

	state := task.StateString()
	name := filepath.Base(task.FilePath())

	switch state {
	case "Done":
		m.notify(events.Notice{Message: "Download finished: " + name, Severity: events.SeveritySuccess})
		m.applyPostActions(task)
		if task.VerifyOnComplete() || task.Checksum().Expected != "" {
			m.VerifyChecksum(taskID)
		}
		m.recordHistory(task, meta)
	case "Error":
		m.notify(events.Notice{Message: "Download failed: " + name, Severity: events.SeverityDanger})
		m.handleFailure(task, meta, name)
	case "Canceled":
		m.notify(events.Notice{Message: "Download canceled: " + name, Severity: events.SeverityMuted})
	}

	m.updateTotals()
	m.scheduleSave()
	go m.StartQueued()
}

// handleFailure advances the mirror list first; only an exhausted list
// consults the retry policy. A successful mirror switch resets both the
// resume validators (different origin) and the retry attempt counter.
func (m *Manager) handleFailure(task *engine.Task, meta *taskMeta, name string) {
	if task.AdvanceMirror() {
		m.mu.Lock()
		meta.retryAttempts = 0
		m.mu.Unlock()
		m.notify(events.Notice{Message: "Switching mirror: " + task.CurrentURL(), Severity: events.SeverityWarning})
		go func() {
			task.Restart()
			m.StartQueued()
		}()
		return
	}

	maxRetries := task.RetryMax()
	if maxRetries < 0 {
		maxRetries = m.settings.Retry.MaxRetries
	}
	delaySec := task.RetryDelaySec()
	if delaySec < 0 {
		delaySec = m.settings.Retry.DelaySec
	}

	m.mu.Lock()
	attempts := meta.retryAttempts
	if attempts >= maxRetries {
		m.mu.Unlock()
		return // surfaced as final error
	}
	meta.retryAttempts = attempts + 1
	m.mu.Unlock()

	m.notify(events.Notice{
		Message:  fmt.Sprintf("Retrying in %ds: %s", delaySec, name),
		Severity: events.SeverityWarning,
	})
	taskID := task.ID()
	time.AfterFunc(time.Duration(delaySec)*time.Second, func() {
		t := m.TaskByID(taskID)
		if t == nil || t.StateString() != "Error" {
			return
		}
		t.Restart()
		m.StartQueued()
	})
}

// applyPostActions runs the per-task completion actions.
func (m *Manager) applyPostActions(task *engine.Task) {
	if m.platform == nil {
		return
	}
	path := task.FilePath()
	if path == "" || !utils.FileExists(path) {
		return
	}
	openFile, revealFolder, extract, script := task.PostActions()

	if revealFolder {
		if err := m.platform.RevealInFolder(path); err == nil {
			task.AppendLog("Post action: Reveal in folder")
		}
	}
	if openFile {
		if err := m.platform.OpenFile(path); err == nil {
			task.AppendLog("Post action: Open file")
		}
	}
	if extract {
		launched, err := m.platform.Extract(path)
		if launched && err == nil {
			m.notify(events.Notice{Message: "Extracting: " + filepath.Base(path), Severity: events.SeverityInfo})
			task.AppendLog("Post action: Extract")
		} else {
			m.notify(events.Notice{Message: "Extract failed (tool missing?)", Severity: events.SeverityWarning})
		}
	}
	if script != "" {
		if err := m.platform.RunScript(script, path); err == nil {
			task.AppendLog("Post action: Script")
		}
	}
}

// recordHistory appends a finished download to the sqlite ledger.
func (m *Manager) recordHistory(task *engine.Task, meta *taskMeta) {
	if m.history == nil {
		return
	}
	m.mu.Lock()
	entry := history.Entry{
		URL:           task.URL(),
		FilePath:      task.FilePath(),
		Size:          meta.received,
		Queue:         meta.queue,
		Category:      meta.category,
		ChecksumState: task.Checksum().State,
		CompletedAt:   time.UnixMilli(meta.completedAt),
	}
	m.mu.Unlock()
	if err := m.history.Add(entry); err != nil {
		m.log.Warn().Err(err).Msg("history record failed")
	}
}
