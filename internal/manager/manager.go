// Package manager composes download tasks into queues and drives
// admission, policy enforcement, retry and mirror failover, and session
// persistence.
package manager

import (
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/raad-downloader/raad/internal/config"
	"github.com/raad-downloader/raad/internal/engine"
	"github.com/raad-downloader/raad/internal/engine/events"
	"github.com/raad-downloader/raad/internal/history"
	"github.com/raad-downloader/raad/internal/model"
	"github.com/raad-downloader/raad/internal/platform"
	"github.com/raad-downloader/raad/internal/power"
	"github.com/raad-downloader/raad/internal/session"
	"github.com/raad-downloader/raad/internal/utils"
)

const (
	schedulerInterval = 60 * time.Second
	sessionVersion    = 4
)

// taskMeta is the manager-side bookkeeping for one task.
type taskMeta struct {
	queue            string
	category         string
	received         int64
	total            int64
	lastReceived     int64
	maxSpeed         int64
	speed            int64
	completedAt      int64
	retryAttempts    int
	pausedBySchedule bool
	pausedByQuota    bool
	pausedByBattery  bool
}

// Deps are the injected collaborators, created once at startup.
type Deps struct {
	Log      zerolog.Logger
	Settings *config.Settings
	Power    power.Source
	Platform platform.Ops
	History  *history.Store // optional
	Notify   func(events.Notice)

	SessionPath string
}

// Manager owns the task arena. Data is guarded by mu; task lifecycle
// calls (Start/Pause/...) are made outside mu because tasks call back
// into the manager synchronously.
type Manager struct {
	mu      sync.Mutex
	admitMu sync.Mutex // serializes admission decisions end to end

	log      zerolog.Logger
	settings *config.Settings
	power    power.Source
	platform platform.Ops
	history  *history.Store
	notify   func(events.Notice)

	tasks []*engine.Task
	byID  map[string]*engine.Task
	meta  map[string]*taskMeta

	queues     map[string]*QueueInfo
	queueOrder []string

	categoryFolders map[string]string
	domainRules     map[string]string

	maxConcurrent  int
	globalMaxSpeed int64
	pauseOnBattery bool
	resumeOnAC     bool
	onBattery      bool

	totalSpeed    int64
	totalReceived int64
	totalSize     int64

	store *session.Store
	model *model.Model

	restoreInProgress  bool
	bulkCancelActive   bool
	checksumInProgress map[string]bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a manager, restores the persisted session, and runs an
// initial policy pass. Call Start to begin the scheduler tick.
func New(deps Deps) *Manager {
	settings := deps.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}
	notify := deps.Notify
	if notify == nil {
		notify = func(events.Notice) {}
	}
	pw := deps.Power
	if pw == nil {
		pw = power.Monitor{}
	}

	m := &Manager{
		log:                deps.Log.With().Str("component", "manager").Logger(),
		settings:           settings,
		power:              pw,
		platform:           deps.Platform,
		history:            deps.History,
		notify:             notify,
		byID:               make(map[string]*engine.Task),
		meta:               make(map[string]*taskMeta),
		queues:             make(map[string]*QueueInfo),
		categoryFolders:    make(map[string]string),
		domainRules:        make(map[string]string),
		maxConcurrent:      3,
		resumeOnAC:         true,
		model:              model.New(),
		checksumInProgress: make(map[string]bool),
		stopCh:             make(chan struct{}),
	}
	sessionPath := deps.SessionPath
	if sessionPath == "" {
		sessionPath = config.GetSessionPath()
	}
	m.store = session.NewStore(sessionPath, m.collectSession)

	m.ensureDefaultQueue()
	m.loadSession()
	m.RefreshPowerState()
	m.SchedulerTick()
	return m
}

// Start launches the 60-second scheduler and power polling loop.
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(schedulerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.RefreshPowerState()
				m.SchedulerTick()
			}
		}
	}()
}

// Stop halts the scheduler and flushes the session to disk.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	_ = m.store.Flush()
}

// Model returns the read-only projection for the UI layer.
func (m *Manager) Model() *model.Model { return m.model }

// AddDownload enqueues a URL into the default queue.
func (m *Manager) AddDownload(rawurl, filePath string) *engine.Task {
	return m.AddDownloadAdvanced(rawurl, filePath, "", "", false, nil)
}

// AddDownloadAdvanced enqueues a URL with queue, category, paused flag,
// and optional per-task settings. Returns nil for an invalid URL.
func (m *Manager) AddDownloadAdvanced(rawurl, filePath, queueName, category string, startPaused bool, opts *engine.Options) *engine.Task {
	if !validURL(rawurl) {
		m.log.Warn().Str("url", rawurl).Msg("invalid url")
		m.notify(events.Notice{Message: "Invalid URL: " + rawurl, Severity: events.SeverityDanger})
		return nil
	}

	m.mu.Lock()
	resolvedQueue := queueName
	if resolvedQueue == "" {
		resolvedQueue = m.defaultQueueNameLocked()
	}
	// Domain rules route only downloads that weren't explicitly queued
	// elsewhere: no queue or the default queue.
	if host := utils.NormalizeHost(hostOf(rawurl)); host != "" {
		if queueName == "" || resolvedQueue == m.defaultQueueNameLocked() {
			if ruleQueue := m.domainRules[host]; ruleQueue != "" {
				resolvedQueue = ruleQueue
			}
		}
	}
	m.createQueueLocked(resolvedQueue)

	resolvedCategory := category
	if resolvedCategory == "" || resolvedCategory == "Auto" {
		if filePath == "" {
			resolvedCategory = "Auto"
		} else {
			resolvedCategory = utils.DetectCategory(filePath)
		}
	}

	if filePath == "" || isDir(filePath) {
		filePath = m.resolveDownloadPathLocked(rawurl, resolvedCategory, filePath)
	}
	if resolvedCategory == "Auto" && filePath != "" {
		resolvedCategory = utils.DetectCategory(filePath)
	}

	// A GUID-looking stored name loses to a nice name implied by the URL.
	if filePath != "" {
		base := filepath.Base(filePath)
		if nice := utils.FileNameFromURL(rawurl); nice != "" && utils.LooksLikeGUIDName(base) {
			filePath = filepath.Join(filepath.Dir(filePath), nice)
		}
	}
	if resolvedCategory != "" && resolvedCategory != "Auto" {
		if folder := m.categoryFolders[resolvedCategory]; folder != "" {
			filePath = filepath.Join(folder, filepath.Base(filePath))
		}
	}
	filePath = utils.UniqueFilePath(filePath)
	m.mu.Unlock()

	if filePath != "" {
		_ = os.MkdirAll(filepath.Dir(filePath), 0755)
	}

	task := m.createTask(rawurl, filePath, resolvedQueue, resolvedCategory, m.settings.Network.Segments)
	if opts != nil {
		mirrors := opts.Mirrors
		if len(mirrors) > 0 && !containsString(mirrors, rawurl) {
			opts.Mirrors = append([]string{rawurl}, mirrors...)
		}
		task.ApplyOptions(*opts)
	}
	if startPaused {
		task.MarkPaused()
	}
	m.StartQueued()
	m.scheduleSave()
	return task
}

// createTask allocates the task, registers metadata, and seeds the model.
func (m *Manager) createTask(rawurl, filePath, queueName, category string, segments int) *engine.Task {
	task := engine.New(rawurl, filePath, segments, m, m.log)
	task.SetUserAgent(m.settings.Network.UserAgent)

	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.byID[task.ID()] = task
	m.meta[task.ID()] = &taskMeta{queue: queueName, category: category}
	m.mu.Unlock()

	m.applyTaskSpeed(task)
	m.model.Add(model.Row{
		TaskID:   task.ID(),
		FileName: filepath.Base(filePath),
		Status:   task.StateString(),
		Queue:    queueName,
		Category: category,
		ETA:      -1,
	})
	return task
}

// TaskByID returns the task for a handle, or nil.
func (m *Manager) TaskByID(id string) *engine.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

// Tasks returns the tasks in insertion order.
func (m *Manager) Tasks() []*engine.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*engine.Task(nil), m.tasks...)
}

// RemoveTask cancels a task and drops it from the arena.
func (m *Manager) RemoveTask(id string) {
	m.mu.Lock()
	task := m.byID[id]
	if task == nil {
		m.mu.Unlock()
		return
	}
	m.removeTaskLocked(id)
	m.mu.Unlock()

	task.Cancel()
	m.model.Remove(id)
	m.updateTotals()
	m.scheduleSave()
	m.StartQueued()
}

// removeTaskLocked unlinks bookkeeping; caller holds m.mu and cancels the
// task afterwards.
func (m *Manager) removeTaskLocked(id string) {
	delete(m.byID, id)
	delete(m.meta, id)
	delete(m.checksumInProgress, id)
	for i, t := range m.tasks {
		if t.ID() == id {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			break
		}
	}
}

// ClearCompleted drops every finished task from the arena.
func (m *Manager) ClearCompleted() {
	m.mu.Lock()
	var ids []string
	for _, t := range m.tasks {
		if t.State() == engine.StateFinished || t.State() == engine.StateCanceled {
			ids = append(ids, t.ID())
		}
	}
	for _, id := range ids {
		m.removeTaskLocked(id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.model.Remove(id)
	}
	m.updateTotals()
	m.scheduleSave()
	m.StartQueued()
}

// PauseAll pauses every running task.
func (m *Manager) PauseAll() {
	for _, t := range m.Tasks() {
		if t.IsRunning() {
			t.Pause()
		}
	}
	m.scheduleSave()
}

// ResumeAll resumes every paused task.
func (m *Manager) ResumeAll() {
	for _, t := range m.Tasks() {
		if t.State() == engine.StatePaused {
			t.Resume()
		}
	}
	m.StartQueued()
	m.scheduleSave()
}

// CancelAll cancels everything and empties the arena. The bulk-cancel
// guard keeps per-task finished handlers from re-entering container
// cleanup mid-iteration.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	m.bulkCancelActive = true
	tasks := append([]*engine.Task(nil), m.tasks...)
	m.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}

	m.mu.Lock()
	m.bulkCancelActive = false
	m.tasks = nil
	m.byID = make(map[string]*engine.Task)
	m.meta = make(map[string]*taskMeta)
	m.checksumInProgress = make(map[string]bool)
	m.mu.Unlock()

	for _, t := range tasks {
		m.model.Remove(t.ID())
	}
	m.updateTotals()
	m.scheduleSave()
}

// RetryFailed restarts every task in the Error state.
func (m *Manager) RetryFailed() {
	for _, t := range m.Tasks() {
		if t.StateString() == "Error" {
			t.Restart()
		}
	}
	m.StartQueued()
	m.scheduleSave()
}

// PauseTask pauses one task by ID.
func (m *Manager) PauseTask(id string) {
	if t := m.TaskByID(id); t != nil {
		t.Pause()
		m.scheduleSave()
	}
}

// ResumeTask resumes one task by ID.
func (m *Manager) ResumeTask(id string) {
	if t := m.TaskByID(id); t != nil {
		t.Resume()
		m.StartQueued()
		m.scheduleSave()
	}
}

// CancelTask cancels one task by ID.
func (m *Manager) CancelTask(id string) {
	if t := m.TaskByID(id); t != nil {
		t.Cancel()
		m.scheduleSave()
	}
}

// RestartTask restarts one task from scratch.
func (m *Manager) RestartTask(id string) {
	if t := m.TaskByID(id); t != nil {
		t.Restart()
		m.StartQueued()
		m.scheduleSave()
	}
}

// SetTaskMaxSpeed applies a per-task cap (0 = unlimited).
func (m *Manager) SetTaskMaxSpeed(id string, bytesPerSec int64) {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	m.mu.Lock()
	meta := m.meta[id]
	task := m.byID[id]
	if meta == nil || task == nil {
		m.mu.Unlock()
		return
	}
	meta.maxSpeed = bytesPerSec
	m.mu.Unlock()
	m.applyTaskSpeed(task)
	m.scheduleSave()
}

// MoveTaskFile moves a non-active task's files (including part siblings)
// to a new path.
func (m *Manager) MoveTaskFile(id, newPath string) bool {
	task := m.TaskByID(id)
	if task == nil || task.StateString() == "Active" || newPath == "" {
		return false
	}
	finalNew := utils.UniqueFilePath(newPath)
	_ = os.MkdirAll(filepath.Dir(finalNew), 0755)
	if !utils.RenameTaskFiles(task.FilePath(), finalNew, task.Segments()) {
		return false
	}
	task.SetFilePath(finalNew)
	m.model.SetFileName(id, filepath.Base(finalNew))
	m.scheduleSave()
	m.notify(events.Notice{Message: "Moved to: " + filepath.Base(finalNew), Severity: events.SeverityInfo})
	return true
}

// SetMaxConcurrent updates the global concurrency limit.
func (m *Manager) SetMaxConcurrent(v int) {
	if v < 1 {
		v = 1
	}
	m.mu.Lock()
	changed := m.maxConcurrent != v
	m.maxConcurrent = v
	m.mu.Unlock()
	if changed {
		m.StartQueued()
		m.scheduleSave()
	}
}

// MaxConcurrent returns the global concurrency limit.
func (m *Manager) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxConcurrent
}

// SetGlobalMaxSpeed updates the global cap and reapplies effective caps.
func (m *Manager) SetGlobalMaxSpeed(v int64) {
	if v < 0 {
		v = 0
	}
	m.mu.Lock()
	changed := m.globalMaxSpeed != v
	m.globalMaxSpeed = v
	tasks := append([]*engine.Task(nil), m.tasks...)
	m.mu.Unlock()
	if !changed {
		return
	}
	for _, t := range tasks {
		m.applyTaskSpeed(t)
	}
	m.scheduleSave()
}

// GlobalMaxSpeed returns the global cap.
func (m *Manager) GlobalMaxSpeed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalMaxSpeed
}

// SetPauseOnBattery toggles the battery policy and re-evaluates.
func (m *Manager) SetPauseOnBattery(enabled bool) {
	m.mu.Lock()
	changed := m.pauseOnBattery != enabled
	m.pauseOnBattery = enabled
	m.mu.Unlock()
	if changed {
		m.RefreshPowerState()
		m.scheduleSave()
		m.SchedulerTick()
	}
}

// SetResumeOnAC toggles auto-resume when AC power returns.
func (m *Manager) SetResumeOnAC(enabled bool) {
	m.mu.Lock()
	changed := m.resumeOnAC != enabled
	m.resumeOnAC = enabled
	m.mu.Unlock()
	if changed {
		m.scheduleSave()
		m.SchedulerTick()
	}
}

// Totals returns the aggregate speed, received, and total size.
func (m *Manager) Totals() (speed, received, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalSpeed, m.totalReceived, m.totalSize
}

// ActiveCount returns the number of running tasks.
func (m *Manager) ActiveCount() int {
	n := 0
	for _, t := range m.Tasks() {
		if t.IsRunning() {
			n++
		}
	}
	return n
}

// QueuedCount returns the number of idle (waiting) tasks.
func (m *Manager) QueuedCount() int {
	n := 0
	for _, t := range m.Tasks() {
		if t.IsIdle() {
			n++
		}
	}
	return n
}

// CompletedCount returns the number of terminal tasks.
func (m *Manager) CompletedCount() int {
	n := 0
	for _, t := range m.Tasks() {
		s := t.State()
		if s == engine.StateFinished || s == engine.StateCanceled {
			n++
		}
	}
	return n
}

// updateTotals recomputes the aggregate counters.
func (m *Manager) updateTotals() {
	m.mu.Lock()
	var speed, received, total int64
	for _, meta := range m.meta {
		speed += meta.speed
		received += meta.received
		total += meta.total
	}
	m.totalSpeed = speed
	m.totalReceived = received
	m.totalSize = total
	m.mu.Unlock()
}

func (m *Manager) scheduleSave() {
	m.mu.Lock()
	restoring := m.restoreInProgress
	m.mu.Unlock()
	if restoring {
		return
	}
	m.store.Schedule()
}

func validURL(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func hostOf(rawurl string) string {
	return utils.NormalizeHost(rawurl)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
