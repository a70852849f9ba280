package engine

import (
	"strings"
	"time"
)

// updateSpeedAndETA recomputes the observed transfer rate at most twice a
// second from the delta in persisted bytes, and samples the speed history
// ring no more often than every 900 ms.
func (t *Task) updateSpeedAndETA() {
	t.mu.Lock()
	now := time.Now()
	if t.lastSpeedAt.IsZero() {
		t.lastSpeedAt = now
		t.lastBytes = t.totalDownloadedLocked()
		t.mu.Unlock()
		return
	}
	elapsed := now.Sub(t.lastSpeedAt)
	if elapsed < speedUpdateGap {
		t.mu.Unlock()
		return
	}
	t.lastSpeedAt = now

	total := t.totalDownloadedLocked()
	delta := total - t.lastBytes
	t.lastBytes = total
	elapsedMs := elapsed.Milliseconds()
	if elapsedMs <= 0 {
		elapsedMs = 1
	}
	speed := delta * 1000 / elapsedMs
	t.speed = speed
	if speed > 0 {
		t.lastSpeed = speed
	}

	if t.totalSize > 0 && speed > 0 {
		t.eta = int((t.totalSize - total) / speed)
		t.lastEta = t.eta
	} else {
		t.eta = -1
	}

	if now.Sub(t.lastSampleAt) >= speedSampleGap {
		t.lastSampleAt = now
		t.speedHistory = append(t.speedHistory, float64(speed))
		if len(t.speedHistory) > speedHistoryLimit {
			t.speedHistory = t.speedHistory[len(t.speedHistory)-speedHistoryLimit:]
		}
	}
	t.mu.Unlock()

	t.sink.OnSpeed(t.id, speed)
}

// AppendLog adds a line to the task's bounded log ring.
func (t *Task) AppendLog(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	t.logLines = append(t.logLines, line)
	if len(t.logLines) > logLimit {
		t.logLines = t.logLines[len(t.logLines)-logLimit:]
	}
	t.mu.Unlock()
}

// LogLines returns a copy of the log ring.
func (t *Task) LogLines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.logLines...)
}

// SpeedHistory returns a copy of the sampled speeds.
func (t *Task) SpeedHistory() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.speedHistory...)
}

// Speed returns the current bytes-per-second estimate.
func (t *Task) Speed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speed
}

// ETA returns seconds remaining, -1 when unknown.
func (t *Task) ETA() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eta
}

// LastSpeed is the last positive speed observed, surviving pauses.
func (t *Task) LastSpeed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSpeed
}

// LastEta is the last computed ETA, surviving pauses.
func (t *Task) LastEta() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEta
}

// SeedPersistedStats restores observed stats from a saved session.
func (t *Task) SeedPersistedStats(lastSpeed int64, lastEta int, pausedAtMs int64, pauseReason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if lastSpeed < 0 {
		lastSpeed = 0
	}
	if lastEta < -1 {
		lastEta = -1
	}
	if pausedAtMs < 0 {
		pausedAtMs = 0
	}
	t.lastSpeed = lastSpeed
	t.lastEta = lastEta
	t.pausedAt = pausedAtMs
	t.pauseReason = pauseReason
}

// PauseReason returns the tag explaining the current pause, if any.
func (t *Task) PauseReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pauseReason
}

// PausedAt returns the pause timestamp in ms since epoch, 0 when unset.
func (t *Task) PausedAt() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pausedAt
}

// ResumeWarning returns the last resume-downgrade warning, if any.
func (t *Task) ResumeWarning() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resumeWarning
}

// SetResumeWarning seeds the warning from a saved session.
func (t *Task) SetResumeWarning(warning string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resumeWarning = warning
}

// AnyError reports whether the last transfer flagged an error.
func (t *Task) AnyError() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.anyError
}
