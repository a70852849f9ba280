// Package model is the read-only projection of the task list consumed by
// the UI layer. It is never authoritative: every mutation originates at
// the task or the manager, which push row updates here.
package model

import (
	"sort"
	"strings"
	"sync"
)

// Row is one download as presented to the UI.
type Row struct {
	TaskID   string
	FileName string
	Received int64
	Total    int64
	Finished bool
	Status   string
	Queue    string
	Category string
	Speed    int64
	ETA      int
}

// Model holds an insertion-ordered list of rows; Add appends, Remove drops.
type Model struct {
	mu    sync.RWMutex
	rows  []Row
	index map[string]int
}

// New returns an empty model.
func New() *Model {
	return &Model{index: make(map[string]int)}
}

// Add appends a row. Duplicate task IDs replace in place.
func (m *Model) Add(row Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[row.TaskID]; ok {
		m.rows[i] = row
		return
	}
	m.index[row.TaskID] = len(m.rows)
	m.rows = append(m.rows, row)
}

// Remove drops the row for a task.
func (m *Model) Remove(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[taskID]
	if !ok {
		return
	}
	m.rows = append(m.rows[:i], m.rows[i+1:]...)
	delete(m.index, taskID)
	for j := i; j < len(m.rows); j++ {
		m.index[m.rows[j].TaskID] = j
	}
}

// update applies fn to the row of taskID, if present.
func (m *Model) update(taskID string, fn func(*Row)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[taskID]; ok {
		fn(&m.rows[i])
	}
}

// SetProgress updates received/total for a task's row.
func (m *Model) SetProgress(taskID string, received, total int64) {
	m.update(taskID, func(r *Row) {
		r.Received = received
		r.Total = total
	})
}

// SetStatus updates the status string and finished flag.
func (m *Model) SetStatus(taskID, status string, finished bool) {
	m.update(taskID, func(r *Row) {
		r.Status = status
		r.Finished = finished
		if finished {
			r.Speed = 0
			r.ETA = -1
		}
	})
}

// SetSpeed updates the live rate and ETA.
func (m *Model) SetSpeed(taskID string, speed int64, eta int) {
	m.update(taskID, func(r *Row) {
		r.Speed = speed
		r.ETA = eta
	})
}

// SetMeta updates queue and category assignment.
func (m *Model) SetMeta(taskID, queue, category string) {
	m.update(taskID, func(r *Row) {
		r.Queue = queue
		r.Category = category
	})
}

// SetFileName updates the displayed file name.
func (m *Model) SetFileName(taskID, name string) {
	m.update(taskID, func(r *Row) {
		r.FileName = name
	})
}

// Len returns the row count.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Rows returns a copy of the rows in insertion order.
func (m *Model) Rows() []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Row(nil), m.rows...)
}

// At returns the row at position i in insertion order.
func (m *Model) At(i int) (Row, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.rows) {
		return Row{}, false
	}
	return m.rows[i], true
}

// Sortable field names accepted by SortedRows.
const (
	SortByName     = "name"
	SortByReceived = "received"
	SortByTotal    = "total"
	SortByStatus   = "status"
	SortByQueue    = "queue"
	SortByCategory = "category"
	SortBySpeed    = "speed"
)

// SortedRows returns a stably sorted copy by the given field. Unknown
// fields return insertion order.
func (m *Model) SortedRows(field string, ascending bool) []Row {
	rows := m.Rows()
	less := func(a, b Row) bool { return false }
	switch field {
	case SortByName:
		less = func(a, b Row) bool { return strings.ToLower(a.FileName) < strings.ToLower(b.FileName) }
	case SortByReceived:
		less = func(a, b Row) bool { return a.Received < b.Received }
	case SortByTotal:
		less = func(a, b Row) bool { return a.Total < b.Total }
	case SortByStatus:
		less = func(a, b Row) bool { return a.Status < b.Status }
	case SortByQueue:
		less = func(a, b Row) bool { return a.Queue < b.Queue }
	case SortByCategory:
		less = func(a, b Row) bool { return a.Category < b.Category }
	case SortBySpeed:
		less = func(a, b Row) bool { return a.Speed < b.Speed }
	default:
		return rows
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if ascending {
			return less(rows[i], rows[j])
		}
		return less(rows[j], rows[i])
	})
	return rows
}
