// Package engine implements the per-download transfer state machine:
// segmented range downloads with resume validators, a throttled write
// pipeline, single-stream fallback, and atomic finalization.
package engine

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/raad-downloader/raad/internal/engine/events"
)

// State is a task's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateDownloading
	StatePaused
	StateFinished
	StateCanceled
)

const (
	logLimit          = 100
	speedHistoryLimit = 120
	speedSampleGap    = 900 * time.Millisecond
	speedUpdateGap    = 500 * time.Millisecond
	readBufferSize    = 256 * 1024
	mergeBufferSize   = 1024 * 1024

	throttleRetryDelay = 50 * time.Millisecond
	throttleDrainDelay = 10 * time.Millisecond
)

// ChecksumInfo is the verification state carried by a task.
type ChecksumInfo struct {
	Algorithm string
	Expected  string
	Actual    string
	State     string // None, Pending, Verifying, OK, Mismatch, Computed, Failed, Unknown
}

// Options are the optional per-task settings applied at creation or
// session restore. Zero values leave the corresponding setting alone,
// except RetryMax/RetryDelaySec where -1 means inherit manager defaults.
type Options struct {
	Mirrors           []string
	MirrorIndex       int
	ChecksumAlgorithm string
	ChecksumExpected  string
	VerifyOnComplete  bool
	Headers           []string
	CookieHeader      string
	AuthUser          string
	AuthPassword      string
	Proxy             Proxy
	RetryMax          int
	RetryDelaySec     int
	PostOpenFile      bool
	PostRevealFolder  bool
	PostExtract       bool
	PostScript        string
}

// singleState tracks the single-stream write target.
type singleState struct {
	path    string
	useTemp bool
	written int64
}

// Task is one download. All mutable state is guarded by mu; transfer I/O
// runs on goroutines tracked by wg and tagged with a generation number so
// callbacks from an aborted attempt are recognized and dropped.
type Task struct {
	mu sync.Mutex

	id        string
	rawurl    string
	filePath  string
	segments  int // configured count
	userAgent string

	mirrors     []string
	mirrorIndex int

	etag            string
	lastModified    string
	totalSize       int64
	useRange        bool
	rangeDowngraded bool
	supportsRange   bool

	state         State
	anyError      bool
	finishing     bool
	pauseReason   string
	pausedAt      int64 // ms since epoch
	resumeWarning string

	segs   []*Segment
	single singleState

	throttle *Throttle
	client   *http.Client
	proxy    Proxy

	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup

	speed        int64
	eta          int
	lastSpeed    int64
	lastEta      int
	lastBytes    int64
	lastSpeedAt  time.Time
	lastSampleAt time.Time
	speedHistory []float64
	logLines     []string

	customHeaders []string
	cookieHeader  string
	authUser      string
	authPassword  string

	postOpenFile     bool
	postRevealFolder bool
	postExtract      bool
	postScript       string

	retryMax      int
	retryDelaySec int

	checksum         ChecksumInfo
	verifyOnComplete bool

	sink events.Sink
	log  zerolog.Logger
}

// New creates an idle task. segments is the configured segment count; the
// effective count is decided per transfer by the size decision table.
func New(rawurl, filePath string, segments int, sink events.Sink, log zerolog.Logger) *Task {
	if segments < 1 {
		segments = 1
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	t := &Task{
		id:            uuid.NewString(),
		rawurl:        rawurl,
		filePath:      filePath,
		segments:      segments,
		userAgent:     "raad/1.0",
		useRange:      true,
		retryMax:      -1,
		retryDelaySec: -1,
		checksum:      ChecksumInfo{State: "None"},
		throttle:      NewThrottle(),
		eta:           -1,
		lastEta:       -1,
		sink:          sink,
		log:           log.With().Str("task", filePath).Logger(),
	}
	t.client = newClient(t.proxy)
	return t
}

// ID returns the task's stable handle.
func (t *Task) ID() string { return t.id }

// URL returns the original (first) URL.
func (t *Task) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rawurl
}

// CurrentURL returns the mirror-resolved URL used for the next attempt.
func (t *Task) CurrentURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentURLLocked()
}

func (t *Task) currentURLLocked() string {
	if len(t.mirrors) > 0 && t.mirrorIndex >= 0 && t.mirrorIndex < len(t.mirrors) {
		return t.mirrors[t.mirrorIndex]
	}
	return t.rawurl
}

// FilePath returns the final destination path.
func (t *Task) FilePath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filePath
}

// SetFilePath repoints the destination; only safe while not downloading.
func (t *Task) SetFilePath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filePath = path
}

// Segments returns the configured segment count.
func (t *Task) Segments() int { return t.segments }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// StateString renders the state the way the UI and session file expect.
func (t *Task) StateString() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateStringLocked()
}

func (t *Task) stateStringLocked() string {
	if t.anyError && t.state == StateFinished {
		return "Error"
	}
	switch t.state {
	case StateIdle:
		return "Queued"
	case StateDownloading:
		return "Active"
	case StatePaused:
		return "Paused"
	case StateFinished:
		return "Done"
	case StateCanceled:
		return "Canceled"
	}
	return "Unknown"
}

// IsRunning reports whether a transfer is in flight.
func (t *Task) IsRunning() bool { return t.State() == StateDownloading }

// IsIdle reports whether the task is waiting for admission.
func (t *Task) IsIdle() bool { return t.State() == StateIdle }

// TotalSize returns the size learned from the probe; 0 means unknown.
func (t *Task) TotalSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSize
}

// TotalDownloaded sums bytes persisted across segments plus the
// single-stream counter.
func (t *Task) TotalDownloaded() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalDownloadedLocked()
}

func (t *Task) totalDownloadedLocked() int64 {
	var total int64
	for _, s := range t.segs {
		total += s.Downloaded
	}
	return total + t.single.written
}

// SetMaxSpeed applies the effective bytes-per-second cap (0 = unlimited).
func (t *Task) SetMaxSpeed(bytesPerSec int64) {
	t.throttle.SetLimit(bytesPerSec)
}

// MaxSpeed returns the effective cap currently applied.
func (t *Task) MaxSpeed() int64 { return t.throttle.Limit() }

// ApplyOptions applies optional settings. Proxy changes rebuild the HTTP
// client so no stale pooled connection bypasses the new route.
func (t *Task) ApplyOptions(o Options) {
	t.mu.Lock()
	if len(o.Mirrors) > 0 {
		t.mirrors = append([]string(nil), o.Mirrors...)
		idx := o.MirrorIndex
		if idx < 0 || idx >= len(t.mirrors) {
			idx = 0
		}
		t.mirrorIndex = idx
	}
	if o.ChecksumAlgorithm != "" {
		t.checksum.Algorithm = o.ChecksumAlgorithm
	}
	if o.ChecksumExpected != "" {
		t.checksum.Expected = o.ChecksumExpected
		if t.checksum.State == "None" {
			t.checksum.State = "Pending"
		}
	}
	t.checksum.State = normalizeChecksumState(t.checksum)
	if o.VerifyOnComplete {
		t.verifyOnComplete = true
	}
	if len(o.Headers) > 0 {
		t.customHeaders = append([]string(nil), o.Headers...)
	}
	if o.CookieHeader != "" {
		t.cookieHeader = o.CookieHeader
	}
	if o.AuthUser != "" {
		t.authUser = o.AuthUser
	}
	if o.AuthPassword != "" {
		t.authPassword = o.AuthPassword
	}
	if o.Proxy.enabled() {
		t.proxy = o.Proxy
		t.client = newClient(t.proxy)
	}
	if o.RetryMax >= 0 {
		t.retryMax = o.RetryMax
	}
	if o.RetryDelaySec >= 0 {
		t.retryDelaySec = o.RetryDelaySec
	}
	if o.PostOpenFile {
		t.postOpenFile = true
	}
	if o.PostRevealFolder {
		t.postRevealFolder = true
	}
	if o.PostExtract {
		t.postExtract = true
	}
	if o.PostScript != "" {
		t.postScript = o.PostScript
	}
	t.mu.Unlock()
}

func normalizeChecksumState(c ChecksumInfo) string {
	if c.State == "" {
		return "None"
	}
	return c.State
}
