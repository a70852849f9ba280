// Package tui renders the download list. It consumes the manager's
// observable model only; every mutation goes through manager methods.
package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/raad-downloader/raad/internal/engine/events"
	"github.com/raad-downloader/raad/internal/manager"
	"github.com/raad-downloader/raad/internal/utils"
)

const pollInterval = 250 * time.Millisecond

type tickMsg time.Time

// NoticeMsg carries a manager toast into the program.
type NoticeMsg events.Notice

// Notifier forwards manager notices into a running program. It buffers
// until Attach is called, since the manager exists before the program.
type Notifier struct {
	mu      sync.Mutex
	program *tea.Program
	backlog []events.Notice
}

// Notify implements the manager's notification callback.
func (n *Notifier) Notify(notice events.Notice) {
	n.mu.Lock()
	p := n.program
	if p == nil {
		n.backlog = append(n.backlog, notice)
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()
	p.Send(NoticeMsg(notice))
}

// Attach connects the program and drains any buffered notices.
func (n *Notifier) Attach(p *tea.Program) {
	n.mu.Lock()
	n.program = p
	backlog := n.backlog
	n.backlog = nil
	n.mu.Unlock()
	for _, notice := range backlog {
		p.Send(NoticeMsg(notice))
	}
}

// Model is the bubbletea model for the download list.
type Model struct {
	mgr     *manager.Manager
	theme   Theme
	table   table.Model
	notices []events.Notice
	width   int
	height  int
}

// New builds the TUI model.
func New(mgr *manager.Manager) Model {
	columns := []table.Column{
		{Title: "File", Width: 32},
		{Title: "Status", Width: 10},
		{Title: "Progress", Width: 18},
		{Title: "Speed", Width: 12},
		{Title: "ETA", Width: 8},
		{Title: "Queue", Width: 12},
		{Title: "Category", Width: 10},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(14),
	)
	return Model{
		mgr:   mgr,
		theme: NewTheme(),
		table: t,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if msg.Height > 10 {
			m.table.SetHeight(msg.Height - 8)
		}
		return m, nil

	case tickMsg:
		m.refreshRows()
		return m, tick()

	case NoticeMsg:
		m.notices = append(m.notices, events.Notice(msg))
		if len(m.notices) > 3 {
			m.notices = m.notices[len(m.notices)-3:]
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			if id := m.selectedTaskID(); id != "" {
				m.mgr.PauseTask(id)
			}
		case "r":
			if id := m.selectedTaskID(); id != "" {
				m.mgr.ResumeTask(id)
			}
		case "c":
			if id := m.selectedTaskID(); id != "" {
				m.mgr.CancelTask(id)
			}
		case "R":
			if id := m.selectedTaskID(); id != "" {
				m.mgr.RestartTask(id)
			}
		case "d":
			if id := m.selectedTaskID(); id != "" {
				m.mgr.RemoveTask(id)
			}
		case "P":
			m.mgr.PauseAll()
		case "A":
			m.mgr.ResumeAll()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) selectedTaskID() string {
	rows := m.mgr.Model().Rows()
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(rows) {
		return ""
	}
	return rows[cursor].TaskID
}

func (m *Model) refreshRows() {
	rows := m.mgr.Model().Rows()
	tableRows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		progress := utils.ConvertBytesToHumanReadable(r.Received)
		if r.Total > 0 {
			progress = fmt.Sprintf("%s / %s", progress, utils.ConvertBytesToHumanReadable(r.Total))
		}
		speed := "--"
		if r.Speed > 0 {
			speed = utils.ConvertBytesToHumanReadable(r.Speed) + "/s"
		}
		tableRows = append(tableRows, table.Row{
			r.FileName,
			r.Status,
			progress,
			speed,
			utils.FormatETA(r.ETA),
			r.Queue,
			r.Category,
		})
	}
	m.table.SetRows(tableRows)
}

// View implements tea.Model.
func (m Model) View() string {
	speed, received, total := m.mgr.Totals()
	header := m.theme.Header.Render(fmt.Sprintf(
		"raad  ↓ %s/s  %s / %s  active %d  queued %d",
		utils.ConvertBytesToHumanReadable(speed),
		utils.ConvertBytesToHumanReadable(received),
		utils.ConvertBytesToHumanReadable(total),
		m.mgr.ActiveCount(),
		m.mgr.QueuedCount(),
	))

	noticeLines := ""
	for _, n := range m.notices {
		style := m.theme.Notice
		switch n.Severity {
		case events.SeverityWarning:
			style = m.theme.Warning
		case events.SeverityDanger:
			style = m.theme.Danger
		case events.SeveritySuccess:
			style = m.theme.Success
		case events.SeverityMuted:
			style = m.theme.Muted
		}
		noticeLines += style.Render(n.Message) + "\n"
	}

	footer := m.theme.Footer.Render("p pause · r resume · c cancel · R restart · d remove · P pause all · A resume all · q quit")
	return header + "\n" + m.theme.TableBox.Render(m.table.View()) + "\n" + noticeLines + footer
}
