package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/raad-downloader/raad/internal/config"
	"github.com/raad-downloader/raad/internal/engine"
	"github.com/raad-downloader/raad/internal/engine/events"
	"github.com/raad-downloader/raad/internal/power"
	"github.com/raad-downloader/raad/internal/testutil"
)

// fakePower is a switchable battery probe.
type fakePower struct {
	mu      sync.Mutex
	battery bool
}

func (f *fakePower) OnBattery(bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.battery
}

func (f *fakePower) set(battery bool) {
	f.mu.Lock()
	f.battery = battery
	f.mu.Unlock()
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.DefaultSettings()
	s.General.DefaultDownloadDir = t.TempDir()
	s.Retry.MaxRetries = 2
	s.Retry.DelaySec = 0
	return s
}

func newTestManager(t *testing.T, pw power.Source) *Manager {
	t.Helper()
	if pw == nil {
		pw = power.Static(false)
	}
	m := New(Deps{
		Log:         zerolog.Nop(),
		Settings:    testSettings(t),
		Power:       pw,
		SessionPath: filepath.Join(t.TempDir(), "downloads.json"),
	})
	t.Cleanup(m.Stop)
	return m
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestAdmissionRespectsGlobalLimit(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(512*1024),
		testutil.WithRangeSupport(false),
		testutil.WithPacing(256*1024),
	)
	defer server.Close()

	m := newTestManager(t, nil)
	m.SetMaxConcurrent(1)
	t1 := m.AddDownload(server.FileURL("a.bin"), filepath.Join(t.TempDir(), "a.bin"))
	t2 := m.AddDownload(server.FileURL("b.bin"), filepath.Join(t.TempDir(), "b.bin"))

	if !waitUntil(t, 5*time.Second, func() bool { return t1.IsRunning() || t2.IsRunning() }) {
		t.Fatal("no task started")
	}
	if m.ActiveCount() > 1 {
		t.Fatalf("ActiveCount = %d with limit 1", m.ActiveCount())
	}
	// When the first finishes, the second gets its slot.
	if !waitUntil(t, 30*time.Second, func() bool {
		return t1.StateString() == "Done" && t2.StateString() == "Done"
	}) {
		t.Fatalf("states: %s / %s", t1.StateString(), t2.StateString())
	}
}

func TestQueueConcurrencyLimit(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(512*1024),
		testutil.WithRangeSupport(false),
		testutil.WithPacing(128*1024),
	)
	defer server.Close()

	m := newTestManager(t, nil)
	m.SetMaxConcurrent(4)
	m.CreateQueue("slow")
	m.UpdateQueue("slow", func(q *QueueInfo) { q.MaxConcurrent = 1 })

	dir := t.TempDir()
	a := m.AddDownloadAdvanced(server.FileURL("a.bin"), filepath.Join(dir, "a.bin"), "slow", "", false, nil)
	b := m.AddDownloadAdvanced(server.FileURL("b.bin"), filepath.Join(dir, "b.bin"), "slow", "", false, nil)

	if !waitUntil(t, 5*time.Second, func() bool { return a.IsRunning() || b.IsRunning() }) {
		t.Fatal("no task started")
	}
	running := 0
	if a.IsRunning() {
		running++
	}
	if b.IsRunning() {
		running++
	}
	if running > 1 {
		t.Fatalf("queue limit 1 but %d running", running)
	}
}

func TestBatteryPolicyBlocksAdmission(t *testing.T) {
	pw := &fakePower{battery: true}
	m := newTestManager(t, pw)
	m.SetPauseOnBattery(true)

	task := m.AddDownload("https://example.invalid/file.bin", filepath.Join(t.TempDir(), "file.bin"))
	time.Sleep(100 * time.Millisecond)
	if task.StateString() != "Queued" {
		t.Fatalf("state = %q, want Queued while on battery", task.StateString())
	}
}

func TestBatteryPausesAndResumes(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(2*1024*1024),
		testutil.WithRangeSupport(false),
		testutil.WithRandomData(),
		testutil.WithPacing(256*1024),
	)
	defer server.Close()

	pw := &fakePower{battery: false}
	m := newTestManager(t, pw)
	m.SetPauseOnBattery(true)
	m.SetResumeOnAC(true)

	dest := filepath.Join(t.TempDir(), "batt.bin")
	task := m.AddDownload(server.FileURL("batt.bin"), dest)
	if !waitUntil(t, 5*time.Second, func() bool { return task.IsRunning() }) {
		t.Fatal("task should start on AC")
	}

	pw.set(true)
	m.RefreshPowerState()
	if !waitUntil(t, 5*time.Second, func() bool { return task.StateString() == "Paused" }) {
		t.Fatalf("state = %q, want Paused on battery", task.StateString())
	}
	if task.PauseReason() != "Battery" {
		t.Errorf("pause reason = %q, want Battery", task.PauseReason())
	}

	pw.set(false)
	m.RefreshPowerState()
	if !waitUntil(t, 30*time.Second, func() bool {
		return task.IsRunning() || task.StateString() == "Done"
	}) {
		t.Fatalf("state = %q, want auto-resume on AC", task.StateString())
	}
}

func TestScheduleBlocksAdmission(t *testing.T) {
	m := newTestManager(t, nil)
	m.CreateQueue("night")
	// A one-minute window that is never "now": [now+2h, now+2h+1m).
	now := time.Now()
	start := (now.Hour()*60 + now.Minute() + 120) % (24 * 60)
	m.UpdateQueue("night", func(q *QueueInfo) {
		q.ScheduleEnabled = true
		q.StartMinutes = start
		q.EndMinutes = (start + 1) % (24 * 60)
	})

	task := m.AddDownloadAdvanced("https://example.invalid/f.bin", filepath.Join(t.TempDir(), "f.bin"), "night", "", false, nil)
	time.Sleep(100 * time.Millisecond)
	if task.StateString() != "Queued" {
		t.Fatalf("state = %q, want Queued outside the schedule window", task.StateString())
	}
}

func TestQuotaPausesAndResumesOnRollover(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(1024*1024),
		testutil.WithRandomData(),
		testutil.WithPacing(512*1024),
	)
	defer server.Close()

	m := newTestManager(t, nil)
	m.CreateQueue("metered")
	// Large enough that the remainder after the rollover fits in a
	// fresh day's budget; the origin honors ranges, so the resume
	// continues from the part file.
	m.UpdateQueue("metered", func(q *QueueInfo) {
		q.QuotaEnabled = true
		q.QuotaBytes = 600 * 1024
	})

	dest := filepath.Join(t.TempDir(), "quota.bin")
	task := m.AddDownloadAdvanced(server.FileURL("quota.bin"), dest, "metered", "", false, nil)

	if !waitUntil(t, 10*time.Second, func() bool { return task.StateString() == "Paused" }) {
		t.Fatalf("state = %q, want Paused after quota trip", task.StateString())
	}
	if task.PauseReason() != "Quota" {
		t.Errorf("pause reason = %q, want Quota", task.PauseReason())
	}

	// Fake the midnight rollover: the next enforcement pass resets the
	// day counter and resumes the quota-paused task.
	m.UpdateQueue("metered", func(q *QueueInfo) { q.LastResetDate = "2000-01-01" })
	if !waitUntil(t, 30*time.Second, func() bool { return task.StateString() == "Done" }) {
		t.Fatalf("state = %q, want Done after rollover", task.StateString())
	}
}

func TestMirrorFailover(t *testing.T) {
	bad := testutil.NewMockServer(
		testutil.WithFileSize(30000),
		testutil.WithNoHead(),
		testutil.WithFailStatus(500),
	)
	defer bad.Close()
	good := testutil.NewMockServer(
		testutil.WithFileSize(30000),
		testutil.WithRandomData(),
	)
	defer good.Close()

	var notices []events.Notice
	var noticeMu sync.Mutex
	m := New(Deps{
		Log:         zerolog.Nop(),
		Settings:    testSettings(t),
		Power:       power.Static(false),
		SessionPath: filepath.Join(t.TempDir(), "downloads.json"),
		Notify: func(n events.Notice) {
			noticeMu.Lock()
			notices = append(notices, n)
			noticeMu.Unlock()
		},
	})
	defer m.Stop()

	dest := filepath.Join(t.TempDir(), "mirror.bin")
	task := m.AddDownloadAdvanced(bad.FileURL("mirror.bin"), dest, "", "", false, &engine.Options{
		Mirrors:       []string{bad.FileURL("mirror.bin"), good.FileURL("mirror.bin")},
		RetryMax:      -1,
		RetryDelaySec: -1,
	})

	if !waitUntil(t, 30*time.Second, func() bool { return task.StateString() == "Done" }) {
		t.Fatalf("state = %q, want Done via mirror", task.StateString())
	}
	if task.CurrentURL() != good.FileURL("mirror.bin") {
		t.Errorf("current url = %q, want the good mirror", task.CurrentURL())
	}
	noticeMu.Lock()
	sawSwitch := false
	for _, n := range notices {
		if n.Severity == events.SeverityWarning && len(n.Message) > 0 {
			sawSwitch = true
		}
	}
	noticeMu.Unlock()
	if !sawSwitch {
		t.Error("expected a mirror-switch notice")
	}
}

func TestRetryAfterFailure(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(20000),
		testutil.WithRandomData(),
		testutil.WithNoHead(),
		testutil.WithFailFirstN(1, 503),
	)
	defer server.Close()

	m := newTestManager(t, nil)
	dest := filepath.Join(t.TempDir(), "retry.bin")
	task := m.AddDownload(server.FileURL("retry.bin"), dest)

	if !waitUntil(t, 30*time.Second, func() bool { return task.StateString() == "Done" }) {
		t.Fatalf("state = %q, want Done after automatic retry", task.StateString())
	}
}

func TestBulkCancel(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(4*1024*1024),
		testutil.WithPacing(512*1024),
	)
	defer server.Close()

	m := newTestManager(t, nil)
	m.SetMaxConcurrent(8)
	dir := t.TempDir()
	var tasks []*engine.Task
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("bulk%d.bin", i)
		tasks = append(tasks, m.AddDownload(server.FileURL(name), filepath.Join(dir, name)))
	}
	waitUntil(t, 5*time.Second, func() bool { return m.ActiveCount() > 0 })

	m.CancelAll()

	for i, task := range tasks {
		if task.StateString() != "Canceled" {
			t.Errorf("task %d state = %q, want Canceled", i, task.StateString())
		}
	}
	if n := len(m.Tasks()); n != 0 {
		t.Errorf("arena holds %d tasks after CancelAll", n)
	}
	speed, received, total := m.Totals()
	if speed != 0 || received != 0 || total != 0 {
		t.Errorf("totals = %d/%d/%d, want zeros", speed, received, total)
	}
}

func TestDomainRuleRoutesQueue(t *testing.T) {
	m := newTestManager(t, nil)
	m.SetDomainRule("mirrors.example.org", "bulk")

	task := m.AddDownloadAdvanced("https://mirrors.example.org/iso/disk.iso", "", "", "", true, nil)
	if got := m.TaskQueueName(task.ID()); got != "bulk" {
		t.Errorf("queue = %q, want bulk", got)
	}

	// An explicit queue wins over the rule.
	task2 := m.AddDownloadAdvanced("https://mirrors.example.org/iso/disk.iso", "", "manual", "", true, nil)
	if got := m.TaskQueueName(task2.ID()); got != "manual" {
		t.Errorf("queue = %q, want manual", got)
	}
}

func TestCategoryResolutionAndFolder(t *testing.T) {
	m := newTestManager(t, nil)
	videoDir := t.TempDir()
	m.SetCategoryFolder("Video", videoDir)

	task := m.AddDownloadAdvanced("https://example.invalid/clip.mp4", "", "", "", true, nil)
	if got := m.TaskCategory(task.ID()); got != "Video" {
		t.Errorf("category = %q, want Video", got)
	}
	if filepath.Dir(task.FilePath()) != videoDir {
		t.Errorf("path %q not under the Video folder", task.FilePath())
	}
	if filepath.Base(task.FilePath()) != "clip.mp4" {
		t.Errorf("filename %q, want clip.mp4", filepath.Base(task.FilePath()))
	}
}

func TestUniquePathOnDuplicate(t *testing.T) {
	m := newTestManager(t, nil)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dup.bin"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	task := m.AddDownloadAdvanced("https://example.invalid/dup.bin", filepath.Join(dir, "dup.bin"), "", "", true, nil)
	if filepath.Base(task.FilePath()) != "dup (1).bin" {
		t.Errorf("path = %q, want uniquified", task.FilePath())
	}
}

func TestRemoveQueueReassignsTasks(t *testing.T) {
	m := newTestManager(t, nil)
	m.CreateQueue("temp")
	task := m.AddDownloadAdvanced("https://example.invalid/f.bin", filepath.Join(t.TempDir(), "f.bin"), "temp", "", true, nil)

	m.RemoveQueue("temp")
	if got := m.TaskQueueName(task.ID()); got != m.DefaultQueueName() {
		t.Errorf("queue = %q, want default after removal", got)
	}
	// Default queue is not removable.
	m.RemoveQueue(m.DefaultQueueName())
	if _, ok := m.Queue(m.DefaultQueueName()); !ok {
		t.Error("default queue must survive")
	}
}

func TestRenameQueueUpdatesReferences(t *testing.T) {
	m := newTestManager(t, nil)
	m.CreateQueue("old")
	m.SetDomainRule("example.net", "old")
	task := m.AddDownloadAdvanced("https://example.invalid/f.bin", filepath.Join(t.TempDir(), "f.bin"), "old", "", true, nil)

	m.RenameQueue("old", "new")
	if got := m.TaskQueueName(task.ID()); got != "new" {
		t.Errorf("task queue = %q, want new", got)
	}
	if m.DomainRules()["example.net"] != "new" {
		t.Error("domain rule should follow the rename")
	}
	if _, ok := m.Queue("old"); ok {
		t.Error("old queue name should be gone")
	}
}
