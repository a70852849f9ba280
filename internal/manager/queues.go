package manager

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raad-downloader/raad/internal/utils"
)

// QueueInfo is a named scheduling group with its own concurrency, speed,
// schedule window, and daily quota.
type QueueInfo struct {
	Name            string
	MaxConcurrent   int
	MaxSpeed        int64
	ScheduleEnabled bool
	StartMinutes    int
	EndMinutes      int
	QuotaEnabled    bool
	QuotaBytes      int64
	DownloadedToday int64
	LastResetDate   string // ISO date, local time
}

func todayISO() string {
	return time.Now().Format("2006-01-02")
}

// ensureDefaultQueue guarantees exactly one default queue exists: the
// first in order, named "General" when created here.
func (m *Manager) ensureDefaultQueue() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queueOrder) == 0 {
		info := &QueueInfo{
			Name:          "General",
			MaxConcurrent: m.maxConcurrent,
			LastResetDate: todayISO(),
		}
		m.queues[info.Name] = info
		m.queueOrder = append(m.queueOrder, info.Name)
	}
}

func (m *Manager) defaultQueueNameLocked() string {
	if len(m.queueOrder) == 0 {
		return "General"
	}
	return m.queueOrder[0]
}

// DefaultQueueName returns the name of the default queue.
func (m *Manager) DefaultQueueName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultQueueNameLocked()
}

func (m *Manager) createQueueLocked(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if _, ok := m.queues[name]; ok {
		return
	}
	m.queues[name] = &QueueInfo{
		Name:          name,
		MaxConcurrent: m.maxConcurrent,
		LastResetDate: todayISO(),
	}
	m.queueOrder = append(m.queueOrder, name)
}

// CreateQueue adds a queue if absent.
func (m *Manager) CreateQueue(name string) {
	m.mu.Lock()
	m.createQueueLocked(name)
	m.mu.Unlock()
	m.scheduleSave()
}

// RemoveQueue deletes a queue, reassigning its tasks to the default.
// The default queue itself cannot be removed.
func (m *Manager) RemoveQueue(name string) {
	m.mu.Lock()
	if _, ok := m.queues[name]; !ok || name == m.defaultQueueNameLocked() {
		m.mu.Unlock()
		return
	}
	fallback := m.defaultQueueNameLocked()
	var reassigned []string
	for id, meta := range m.meta {
		if meta.queue == name {
			meta.queue = fallback
			reassigned = append(reassigned, id)
		}
	}
	delete(m.queues, name)
	for i, n := range m.queueOrder {
		if n == name {
			m.queueOrder = append(m.queueOrder[:i], m.queueOrder[i+1:]...)
			break
		}
	}
	metas := make(map[string]string, len(reassigned))
	for _, id := range reassigned {
		metas[id] = m.meta[id].category
	}
	tasks := make([]string, 0, len(reassigned))
	tasks = append(tasks, reassigned...)
	m.mu.Unlock()

	for _, id := range tasks {
		m.model.SetMeta(id, fallback, metas[id])
		if t := m.TaskByID(id); t != nil {
			m.applyTaskSpeed(t)
		}
	}
	m.scheduleSave()
	m.StartQueued()
}

// RenameQueue renames a queue; all task references update atomically.
func (m *Manager) RenameQueue(oldName, newName string) {
	newName = strings.TrimSpace(newName)
	m.mu.Lock()
	info, ok := m.queues[oldName]
	if newName == "" || !ok {
		m.mu.Unlock()
		return
	}
	if _, exists := m.queues[newName]; exists {
		m.mu.Unlock()
		return
	}
	delete(m.queues, oldName)
	info.Name = newName
	m.queues[newName] = info
	for i, n := range m.queueOrder {
		if n == oldName {
			m.queueOrder[i] = newName
		}
	}
	updates := make(map[string]string)
	for id, meta := range m.meta {
		if meta.queue == oldName {
			meta.queue = newName
			updates[id] = meta.category
		}
	}
	for host, q := range m.domainRules {
		if q == oldName {
			m.domainRules[host] = newName
		}
	}
	m.mu.Unlock()

	for id, cat := range updates {
		m.model.SetMeta(id, newName, cat)
	}
	m.scheduleSave()
}

// QueueNames returns queue names in order; the first is the default.
func (m *Manager) QueueNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queueOrder...)
}

// Queue returns a copy of a queue's settings.
func (m *Manager) Queue(name string) (QueueInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.queues[name]
	if !ok {
		return QueueInfo{}, false
	}
	return *info, true
}

// UpdateQueue applies fn to a queue's settings, then re-evaluates
// policies and admission.
func (m *Manager) UpdateQueue(name string, fn func(*QueueInfo)) {
	m.mu.Lock()
	info, ok := m.queues[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	fn(info)
	if info.MaxConcurrent < 0 {
		info.MaxConcurrent = 0
	}
	if info.MaxSpeed < 0 {
		info.MaxSpeed = 0
	}
	info.StartMinutes = clampMinutes(info.StartMinutes)
	info.EndMinutes = clampMinutes(info.EndMinutes)
	tasks := make([]string, 0)
	for id, meta := range m.meta {
		if meta.queue == name {
			tasks = append(tasks, id)
		}
	}
	m.mu.Unlock()

	for _, id := range tasks {
		if t := m.TaskByID(id); t != nil {
			m.applyTaskSpeed(t)
		}
	}
	m.scheduleSave()
	m.enforcePolicies()
	m.StartQueued()
}

func clampMinutes(v int) int {
	if v < 0 {
		return 0
	}
	if v > 23*60+59 {
		return 23*60 + 59
	}
	return v
}

// SetTaskQueue reassigns a task to a queue, creating it on demand.
func (m *Manager) SetTaskQueue(id, name string) {
	m.mu.Lock()
	meta := m.meta[id]
	if meta == nil {
		m.mu.Unlock()
		return
	}
	if name == "" {
		name = m.defaultQueueNameLocked()
	}
	m.createQueueLocked(name)
	meta.queue = name
	category := meta.category
	m.mu.Unlock()

	m.model.SetMeta(id, name, category)
	if t := m.TaskByID(id); t != nil {
		m.applyTaskSpeed(t)
	}
	m.scheduleSave()
	m.StartQueued()
}

// SetTaskCategory reassigns a task's category; empty means re-detect.
func (m *Manager) SetTaskCategory(id, category string) {
	task := m.TaskByID(id)
	if task == nil {
		return
	}
	if category == "" {
		category = utils.DetectCategory(task.FilePath())
	}
	m.mu.Lock()
	meta := m.meta[id]
	if meta == nil || meta.category == category {
		m.mu.Unlock()
		return
	}
	meta.category = category
	queue := meta.queue
	m.mu.Unlock()

	m.model.SetMeta(id, queue, category)
	m.scheduleSave()
}

// TaskQueueName returns the queue a task belongs to.
func (m *Manager) TaskQueueName(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta := m.meta[id]; meta != nil {
		return meta.queue
	}
	return m.defaultQueueNameLocked()
}

// TaskCategory returns a task's category.
func (m *Manager) TaskCategory(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta := m.meta[id]; meta != nil {
		return meta.category
	}
	return "Other"
}

// SetCategoryFolder maps a category to a target folder; empty removes.
func (m *Manager) SetCategoryFolder(category, folder string) {
	if category == "" || category == "Auto" {
		return
	}
	folder = strings.TrimSuffix(strings.TrimSpace(folder), "/")
	m.mu.Lock()
	if folder == "" {
		delete(m.categoryFolders, category)
	} else {
		m.categoryFolders[category] = folder
	}
	m.mu.Unlock()
	m.scheduleSave()
}

// CategoryFolder returns the folder mapped to a category, if any.
func (m *Manager) CategoryFolder(category string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if category == "" || category == "Auto" {
		return ""
	}
	return m.categoryFolders[category]
}

// SetDomainRule routes a host to a queue, creating the queue on demand.
func (m *Manager) SetDomainRule(host, queue string) {
	key := utils.NormalizeHost(host)
	if key == "" {
		return
	}
	m.mu.Lock()
	if queue == "" {
		queue = m.defaultQueueNameLocked()
	}
	m.createQueueLocked(queue)
	m.domainRules[key] = queue
	m.mu.Unlock()
	m.scheduleSave()
}

// RemoveDomainRule drops a host routing rule.
func (m *Manager) RemoveDomainRule(host string) {
	key := utils.NormalizeHost(host)
	m.mu.Lock()
	delete(m.domainRules, key)
	m.mu.Unlock()
	m.scheduleSave()
}

// DomainRules returns a copy of the host→queue map.
func (m *Manager) DomainRules() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.domainRules))
	for k, v := range m.domainRules {
		out[k] = v
	}
	return out
}

// resolveDownloadPathLocked builds a destination path from the URL's
// implied filename, the category folder mapping, and the settings
// default directory. Caller holds m.mu.
func (m *Manager) resolveDownloadPathLocked(rawurl, category, fallbackFolder string) string {
	fileName := utils.FileNameFromURL(rawurl)
	if fileName == "" {
		fileName = "download.bin"
	}
	effective := category
	if effective == "" || effective == "Auto" {
		effective = utils.DetectCategory(fileName)
	}
	folder := ""
	if effective != "" && effective != "Auto" {
		folder = m.categoryFolders[effective]
	}
	if folder == "" {
		folder = fallbackFolder
	}
	if folder == "" {
		folder = m.settings.General.DefaultDownloadDir
	}
	return filepath.Join(folder, fileName)
}

// isWithinSchedule evaluates the queue's daily window; a window crossing
// midnight wraps.
func isWithinSchedule(info *QueueInfo, now time.Time) bool {
	if !info.ScheduleEnabled {
		return true
	}
	start, end := info.StartMinutes, info.EndMinutes
	current := now.Hour()*60 + now.Minute()
	if start == end {
		return true
	}
	if start < end {
		return current >= start && current < end
	}
	return current >= start || current < end
}

// quotaExceeded reports whether the queue's daily byte budget is spent.
func quotaExceeded(info *QueueInfo) bool {
	return info.QuotaEnabled && info.QuotaBytes > 0 && info.DownloadedToday >= info.QuotaBytes
}

// isQueueAllowed combines schedule and quota admission checks.
func isQueueAllowed(info *QueueInfo, now time.Time) bool {
	if info.ScheduleEnabled && !isWithinSchedule(info, now) {
		return false
	}
	return !quotaExceeded(info)
}
