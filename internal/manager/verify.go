package manager

import (
	"github.com/raad-downloader/raad/internal/checksum"
	"github.com/raad-downloader/raad/internal/engine/events"
	"github.com/raad-downloader/raad/internal/utils"
)

// VerifyChecksum hashes a task's finished file on a worker and settles
// the checksum state: OK/Mismatch against an expected digest, Computed
// when there is none, Failed on I/O error, Unknown for an unsupported
// algorithm name.
func (m *Manager) VerifyChecksum(taskID string) {
	task := m.TaskByID(taskID)
	if task == nil {
		return
	}
	path := task.FilePath()
	if !utils.FileExists(path) {
		m.notify(events.Notice{Message: "File not found for checksum", Severity: events.SeverityDanger})
		return
	}

	info := task.Checksum()
	algo := info.Algorithm
	expected := info.Expected
	if algo == "" {
		if expected != "" {
			algo = utils.DetectChecksumAlgo(expected)
		}
		if algo == "" {
			algo = "SHA256"
		}
		task.SetChecksumAlgorithm(algo)
	}
	if !checksum.Supported(algo) {
		task.SetChecksumState("Unknown")
		m.notify(events.Notice{Message: "Unknown checksum algorithm", Severity: events.SeverityWarning})
		return
	}

	m.mu.Lock()
	if m.checksumInProgress[taskID] {
		m.mu.Unlock()
		m.notify(events.Notice{Message: "Checksum already running", Severity: events.SeverityWarning})
		return
	}
	m.checksumInProgress[taskID] = true
	m.mu.Unlock()

	task.SetChecksumState("Verifying")
	task.AppendLog("Checksum verify started (" + algo + ")")
	m.scheduleSave()

	checksum.FileAsync(path, algo, func(digest string, err error) {
		m.mu.Lock()
		delete(m.checksumInProgress, taskID)
		m.mu.Unlock()

		t := m.TaskByID(taskID)
		if t == nil {
			return
		}
		if err != nil || digest == "" {
			t.SetChecksumState("Failed")
			t.AppendLog("Checksum failed")
			m.notify(events.Notice{Message: "Checksum failed", Severity: events.SeverityDanger})
			m.scheduleSave()
			return
		}
		t.SetChecksumActual(digest)
		if expected == "" {
			t.SetChecksumState("Computed")
			t.AppendLog("Checksum computed")
			m.notify(events.Notice{Message: "Checksum computed", Severity: events.SeverityInfo})
			m.scheduleSave()
			return
		}
		if utils.NormalizeChecksum(expected) == utils.NormalizeChecksum(digest) {
			t.SetChecksumState("OK")
			t.AppendLog("Checksum OK")
			m.notify(events.Notice{Message: "Checksum OK", Severity: events.SeveritySuccess})
		} else {
			t.SetChecksumState("Mismatch")
			t.AppendLog("Checksum mismatch")
			m.notify(events.Notice{Message: "Checksum mismatch", Severity: events.SeverityDanger})
		}
		m.scheduleSave()
	})
}
