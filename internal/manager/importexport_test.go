package manager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raad-downloader/raad/internal/power"
)

func TestImportPlainText(t *testing.T) {
	m := newTestManager(t, power.Static(true))
	m.SetPauseOnBattery(true) // keep imported tasks out of admission
	dir := t.TempDir()
	list := `# comment
// also a comment
https://example.invalid/one.bin ` + filepath.Join(dir, "one.bin") + `
https://example.invalid/two.bin|` + filepath.Join(dir, "two.bin") + `|bulk|Video

https://example.invalid/three.bin
`
	path := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(path, []byte(list), 0644))
	require.NoError(t, m.ImportList(path))

	tasks := m.Tasks()
	require.Len(t, tasks, 3)
	// The piped entry carries queue and category.
	var found bool
	for _, task := range tasks {
		if filepath.Base(task.FilePath()) == "two.bin" {
			found = true
			assert.Equal(t, "bulk", m.TaskQueueName(task.ID()))
			assert.Equal(t, "Video", m.TaskCategory(task.ID()))
		}
	}
	assert.True(t, found)
}

func TestImportJSONShapes(t *testing.T) {
	m := newTestManager(t, power.Static(true))
	m.SetPauseOnBattery(true)
	dir := t.TempDir()

	// Array of mixed strings and objects.
	doc := `[
	  "https://example.invalid/a.bin",
	  {"url": "https://example.invalid/b.bin", "filePath": "` + filepath.Join(dir, "b.bin") + `", "queueName": "q2", "startPaused": true}
	]`
	path := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	require.NoError(t, m.ImportList(path))
	assert.Len(t, m.Tasks(), 2)

	// {items: [...]} wrapper.
	doc2 := `{"items": ["https://example.invalid/c.bin"]}`
	path2 := filepath.Join(dir, "list2.json")
	require.NoError(t, os.WriteFile(path2, []byte(doc2), 0644))
	require.NoError(t, m.ImportList(path2))
	assert.Len(t, m.Tasks(), 3)
}

func TestImportYAML(t *testing.T) {
	m := newTestManager(t, power.Static(true))
	m.SetPauseOnBattery(true)
	dir := t.TempDir()
	doc := `- url: https://example.invalid/a.bin
  filePath: ` + filepath.Join(dir, "a.bin") + `
  startPaused: true
- url: https://example.invalid/b.bin
  queueName: batch
`
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	require.NoError(t, m.ImportList(path))
	assert.Len(t, m.Tasks(), 2)
}

func TestExportTxtAndJSON(t *testing.T) {
	m := newTestManager(t, nil)
	dir := t.TempDir()
	m.AddDownloadAdvanced("https://example.invalid/x.bin", filepath.Join(dir, "x.bin"), "", "", true, nil)
	m.AddDownloadAdvanced("https://example.invalid/y.bin", filepath.Join(dir, "y.bin"), "q", "Audio", true, nil)

	txtPath := filepath.Join(dir, "out.txt")
	require.NoError(t, m.ExportList(txtPath))
	raw, err := os.ReadFile(txtPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "https://example.invalid/x.bin\n")
	assert.Contains(t, string(raw), "https://example.invalid/y.bin\n")

	jsonPath := filepath.Join(dir, "out.json")
	require.NoError(t, m.ExportList(jsonPath))
	var doc struct {
		Version int `json:"version"`
		Items   []struct {
			URL       string `json:"url"`
			QueueName string `json:"queueName"`
			State     string `json:"state"`
		} `json:"items"`
	}
	rawJSON, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(rawJSON, &doc))
	assert.Equal(t, 1, doc.Version)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "q", doc.Items[1].QueueName)
	assert.Equal(t, "Paused", doc.Items[1].State)
}
