package manager

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raad-downloader/raad/internal/engine/events"
	"github.com/raad-downloader/raad/internal/utils"
)

// importEntry is one download in a JSON or YAML import list.
type importEntry struct {
	URL         string `json:"url" yaml:"url"`
	FilePath    string `json:"filePath" yaml:"filePath"`
	QueueName   string `json:"queueName" yaml:"queueName"`
	Category    string `json:"category" yaml:"category"`
	StartPaused bool   `json:"startPaused" yaml:"startPaused"`
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// ImportList loads downloads from a file. Accepted shapes: a JSON array
// (of URL strings or entry objects), a JSON object with an "items" array,
// a YAML list of entries, or plain text with one entry per line
// ("url [filePath [queue [category]]]", fields split on "|" or
// whitespace; "#" and "//" comment lines skipped).
func (m *Manager) ImportList(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	count := 0
	add := func(e importEntry) {
		if e.URL == "" {
			return
		}
		if m.AddDownloadAdvanced(e.URL, e.FilePath, e.QueueName, e.Category, e.StartPaused, nil) != nil {
			count++
		}
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml"):
		var entries []importEntry
		if err := yaml.Unmarshal(raw, &entries); err != nil {
			return err
		}
		for _, e := range entries {
			add(e)
		}
	case json.Valid(raw):
		for _, e := range parseJSONImport(raw) {
			add(e)
		}
	default:
		for _, e := range parseTextImport(raw) {
			add(e)
		}
	}

	m.notify(events.Notice{Message: "Imported downloads", Severity: events.SeveritySuccess})
	m.log.Info().Int("count", count).Str("path", path).Msg("import complete")
	return nil
}

func parseJSONImport(raw []byte) []importEntry {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		var root struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(raw, &root); err != nil {
			return nil
		}
		arr = root.Items
	}

	var entries []importEntry
	for _, item := range arr {
		var urlStr string
		if err := json.Unmarshal(item, &urlStr); err == nil {
			entries = append(entries, importEntry{URL: urlStr})
			continue
		}
		var e importEntry
		if err := json.Unmarshal(item, &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func parseTextImport(raw []byte) []importEntry {
	var entries []importEntry
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		var parts []string
		if strings.Contains(trimmed, "|") {
			parts = strings.Split(trimmed, "|")
		} else {
			parts = whitespaceRe.Split(trimmed, -1)
		}
		e := importEntry{URL: strings.TrimSpace(fieldAt(parts, 0))}
		e.FilePath = strings.TrimSpace(fieldAt(parts, 1))
		e.QueueName = strings.TrimSpace(fieldAt(parts, 2))
		e.Category = strings.TrimSpace(fieldAt(parts, 3))
		if e.URL != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

func fieldAt(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

// exportItem is one download in the JSON export format.
type exportItem struct {
	URL           string `json:"url"`
	FilePath      string `json:"filePath"`
	QueueName     string `json:"queueName"`
	Category      string `json:"category"`
	State         string `json:"state"`
	BytesReceived int64  `json:"bytesReceived"`
	BytesTotal    int64  `json:"bytesTotal"`
}

// ExportList writes the download list to a file: bare URLs for ".txt",
// a versioned JSON document otherwise.
func (m *Manager) ExportList(path string) error {
	tasks := m.Tasks()

	if strings.HasSuffix(strings.ToLower(path), ".txt") {
		var sb strings.Builder
		for _, t := range tasks {
			sb.WriteString(t.URL())
			sb.WriteString("\n")
		}
		if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
			return err
		}
		m.notify(events.Notice{Message: "Exported list", Severity: events.SeveritySuccess})
		return nil
	}

	root := struct {
		Version int          `json:"version"`
		Items   []exportItem `json:"items"`
	}{Version: 1}

	m.mu.Lock()
	for _, t := range tasks {
		meta := m.meta[t.ID()]
		item := exportItem{
			URL:       t.URL(),
			FilePath:  t.FilePath(),
			QueueName: m.defaultQueueNameLocked(),
			State:     t.StateString(),
		}
		if meta != nil {
			if meta.queue != "" {
				item.QueueName = meta.queue
			}
			item.Category = meta.category
			item.BytesReceived = meta.received
			item.BytesTotal = meta.total
		}
		if item.Category == "" {
			item.Category = utils.DetectCategory(t.FilePath())
		}
		root.Items = append(root.Items, item)
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	m.notify(events.Notice{Message: "Exported list", Severity: events.SeveritySuccess})
	return nil
}
