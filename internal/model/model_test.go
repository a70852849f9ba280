package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleModel() *Model {
	m := New()
	m.Add(Row{TaskID: "1", FileName: "beta.bin", Received: 50, Total: 100, Status: "Active", Queue: "General"})
	m.Add(Row{TaskID: "2", FileName: "alpha.bin", Received: 10, Total: 200, Status: "Paused", Queue: "bulk"})
	m.Add(Row{TaskID: "3", FileName: "gamma.bin", Received: 90, Total: 100, Status: "Active", Queue: "General"})
	return m
}

func TestAddAndUpdate(t *testing.T) {
	m := sampleModel()
	assert.Equal(t, 3, m.Len())

	m.SetProgress("2", 40, 200)
	m.SetStatus("2", "Active", false)
	m.SetSpeed("2", 1000, 160)
	m.SetMeta("2", "fast", "Video")
	m.SetFileName("2", "renamed.bin")

	row, ok := m.At(1)
	assert.True(t, ok)
	assert.EqualValues(t, 40, row.Received)
	assert.Equal(t, "Active", row.Status)
	assert.EqualValues(t, 1000, row.Speed)
	assert.Equal(t, "fast", row.Queue)
	assert.Equal(t, "renamed.bin", row.FileName)
}

func TestFinishedClearsRate(t *testing.T) {
	m := sampleModel()
	m.SetSpeed("1", 5000, 10)
	m.SetStatus("1", "Done", true)
	row, _ := m.At(0)
	assert.True(t, row.Finished)
	assert.EqualValues(t, 0, row.Speed)
	assert.Equal(t, -1, row.ETA)
}

func TestRemoveReindexes(t *testing.T) {
	m := sampleModel()
	m.Remove("2")
	assert.Equal(t, 2, m.Len())

	// The remaining rows stay addressable by ID.
	m.SetProgress("3", 95, 100)
	row, ok := m.At(1)
	assert.True(t, ok)
	assert.Equal(t, "3", row.TaskID)
	assert.EqualValues(t, 95, row.Received)
}

func TestSortedRows(t *testing.T) {
	m := sampleModel()

	byName := m.SortedRows(SortByName, true)
	assert.Equal(t, []string{"alpha.bin", "beta.bin", "gamma.bin"},
		[]string{byName[0].FileName, byName[1].FileName, byName[2].FileName})

	byReceivedDesc := m.SortedRows(SortByReceived, false)
	assert.EqualValues(t, 90, byReceivedDesc[0].Received)

	// Unknown field keeps insertion order.
	plain := m.SortedRows("bogus", true)
	assert.Equal(t, "1", plain[0].TaskID)

	// Stable: equal keys keep insertion order.
	byStatus := m.SortedRows(SortByStatus, true)
	assert.Equal(t, "1", byStatus[0].TaskID)
	assert.Equal(t, "3", byStatus[1].TaskID)
}

func TestRowsReturnsCopy(t *testing.T) {
	m := sampleModel()
	rows := m.Rows()
	rows[0].FileName = "mutated"
	fresh, _ := m.At(0)
	assert.Equal(t, "beta.bin", fresh.FileName)
}
