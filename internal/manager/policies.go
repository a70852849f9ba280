package manager

import (
	"time"

	"github.com/raad-downloader/raad/internal/engine"
)

// applyTaskSpeed computes the effective cap for a task as the min of the
// global, queue, and per-task limits, where 0 means "no limit" and is
// ignored against a positive value.
func (m *Manager) applyTaskSpeed(task *engine.Task) {
	m.mu.Lock()
	effective := m.globalMaxSpeed
	if meta := m.meta[task.ID()]; meta != nil {
		if info := m.queues[meta.queue]; info != nil && info.MaxSpeed > 0 {
			if effective == 0 || info.MaxSpeed < effective {
				effective = info.MaxSpeed
			}
		}
		if meta.maxSpeed > 0 {
			if effective == 0 || meta.maxSpeed < effective {
				effective = meta.maxSpeed
			}
		}
	}
	m.mu.Unlock()
	task.SetMaxSpeed(effective)
}

// StartQueued runs admission: idle tasks start in insertion order while
// the global limit, per-queue limits, battery policy, schedule windows,
// and quotas allow. Decisions are made under the data lock, task starts
// happen outside it.
func (m *Manager) StartQueued() {
	m.admitMu.Lock()
	defer m.admitMu.Unlock()

	m.mu.Lock()
	now := time.Now()
	running := 0
	runningPerQueue := make(map[string]int)
	for _, t := range m.tasks {
		if t.IsRunning() {
			running++
			if meta := m.meta[t.ID()]; meta != nil {
				runningPerQueue[meta.queue]++
			}
		}
	}

	blockedByBattery := m.pauseOnBattery && m.onBattery
	var toStart []*engine.Task
	for _, candidate := range m.tasks {
		if running >= m.maxConcurrent {
			break
		}
		if !candidate.IsIdle() || blockedByBattery {
			continue
		}
		meta := m.meta[candidate.ID()]
		if meta == nil {
			continue
		}
		qname := meta.queue
		m.createQueueLocked(qname)
		info := m.queues[qname]
		if !isQueueAllowed(info, now) {
			continue
		}
		queueLimit := info.MaxConcurrent
		if queueLimit <= 0 {
			queueLimit = m.maxConcurrent
		}
		if runningPerQueue[qname] >= queueLimit {
			continue
		}
		toStart = append(toStart, candidate)
		running++
		runningPerQueue[qname]++
	}
	m.mu.Unlock()

	for _, t := range toStart {
		m.applyTaskSpeed(t)
		t.Start()
	}
}

// enforcePolicies pauses running tasks that violate battery, schedule, or
// quota constraints and auto-resumes tasks whose pause reasons cleared.
// Runs the daily quota reset first, so quota-paused tasks resume on the
// tick that crosses midnight.
func (m *Manager) enforcePolicies() {
	type action struct {
		task   *engine.Task
		pause  bool
		reason string
		resume bool
	}

	m.mu.Lock()
	today := todayISO()
	now := time.Now()
	blockedByBattery := m.pauseOnBattery && m.onBattery

	for _, info := range m.queues {
		if info.LastResetDate != today {
			info.LastResetDate = today
			info.DownloadedToday = 0
		}
	}

	var actions []action
	for _, task := range m.tasks {
		meta := m.meta[task.ID()]
		if meta == nil {
			continue
		}
		info := m.queues[meta.queue]
		if info == nil {
			continue
		}
		allowed := isQueueAllowed(info, now)

		if task.IsRunning() {
			switch {
			case blockedByBattery:
				meta.pausedByBattery = true
				actions = append(actions, action{task: task, pause: true, reason: "Battery"})
			case !allowed:
				if info.ScheduleEnabled && !isWithinSchedule(info, now) {
					meta.pausedBySchedule = true
					actions = append(actions, action{task: task, pause: true, reason: "Schedule"})
				} else if quotaExceeded(info) {
					meta.pausedByQuota = true
					actions = append(actions, action{task: task, pause: true, reason: "Quota"})
				}
			}
			continue
		}

		if task.State() == engine.StatePaused {
			pausedByPolicy := meta.pausedBySchedule || meta.pausedByQuota || meta.pausedByBattery
			canResume := allowed && !blockedByBattery && (m.resumeOnAC || !meta.pausedByBattery)
			if pausedByPolicy && canResume {
				meta.pausedBySchedule = false
				meta.pausedByQuota = false
				meta.pausedByBattery = false
				actions = append(actions, action{task: task, resume: true})
			}
		}
	}
	m.mu.Unlock()

	for _, a := range actions {
		if a.pause {
			a.task.PauseWithReason(a.reason)
		} else if a.resume {
			a.task.Resume()
		}
	}
}

// SchedulerTick is the fixed-interval pass: enforce policies, then admit.
func (m *Manager) SchedulerTick() {
	m.enforcePolicies()
	m.StartQueued()
}

// RefreshPowerState polls the power source and re-evaluates policies on
// a transition.
func (m *Manager) RefreshPowerState() {
	m.mu.Lock()
	prev := m.onBattery
	next := m.power.OnBattery(prev)
	m.onBattery = next
	m.mu.Unlock()
	if prev != next {
		m.log.Debug().Bool("on_battery", next).Msg("power state changed")
		m.SchedulerTick()
	}
}

// OnBattery returns the last polled battery state.
func (m *Manager) OnBattery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onBattery
}
