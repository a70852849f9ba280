// Package testutil provides testing utilities for the raad download
// engine: a configurable mock HTTP origin and filesystem helpers.
package testutil

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// MockServer is a configurable HTTP origin for download tests.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	FileSize       int64  // size of the served file
	SupportsRanges bool   // advertise and honor Range requests
	IgnoreRange    bool   // advertise ranges but answer 200 full-body anyway
	RejectRange    bool   // answer 416 to any Range request
	ETag           string // ETag header value ("" = none)
	LastModified   string // Last-Modified header value ("" = none)
	Filename       string // Content-Disposition filename ("" = none)
	RandomData     bool   // serve random bytes instead of a pattern
	FailStatus     int    // non-zero: answer every GET with this status
	FailFirstN     int    // answer the first N GETs with FailStatus
	NoHead         bool   // answer HEAD with 405
	BytesPerSec    int    // non-zero: pace the body at this rate

	// Tracking
	RequestCount  atomic.Int64
	HeadRequests  atomic.Int64
	RangeRequests atomic.Int64
	FullRequests  atomic.Int64

	mu      sync.Mutex
	getSeen int
	data    []byte
}

// Option configures a MockServer.
type Option func(*MockServer)

// WithFileSize sets the size of the served file.
func WithFileSize(size int64) Option { return func(m *MockServer) { m.FileSize = size } }

// WithRangeSupport toggles Accept-Ranges/206 behavior.
func WithRangeSupport(enabled bool) Option { return func(m *MockServer) { m.SupportsRanges = enabled } }

// WithIgnoreRange makes the server advertise ranges yet answer 200.
func WithIgnoreRange() Option { return func(m *MockServer) { m.IgnoreRange = true } }

// WithRejectRange makes the server answer 416 to range requests.
func WithRejectRange() Option { return func(m *MockServer) { m.RejectRange = true } }

// WithETag sets the ETag validator.
func WithETag(etag string) Option { return func(m *MockServer) { m.ETag = etag } }

// WithLastModified sets the Last-Modified validator.
func WithLastModified(v string) Option { return func(m *MockServer) { m.LastModified = v } }

// WithFilename sets a Content-Disposition filename.
func WithFilename(name string) Option { return func(m *MockServer) { m.Filename = name } }

// WithRandomData serves random bytes.
func WithRandomData() Option { return func(m *MockServer) { m.RandomData = true } }

// WithFailStatus answers every GET with the given status.
func WithFailStatus(status int) Option { return func(m *MockServer) { m.FailStatus = status } }

// WithFailFirstN answers the first n GETs with FailStatus, then serves
// normally.
func WithFailFirstN(n, status int) Option {
	return func(m *MockServer) { m.FailFirstN = n; m.FailStatus = status }
}

// WithNoHead rejects HEAD probes with 405.
func WithNoHead() Option { return func(m *MockServer) { m.NoHead = true } }

// WithPacing throttles the served body to bytesPerSec.
func WithPacing(bytesPerSec int) Option { return func(m *MockServer) { m.BytesPerSec = bytesPerSec } }

// NewMockServer starts a mock origin with the given options. Callers must
// Close it.
func NewMockServer(opts ...Option) *MockServer {
	m := &MockServer{
		FileSize:       1024 * 1024,
		SupportsRanges: true,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.data = make([]byte, m.FileSize)
	if m.RandomData {
		_, _ = rand.Read(m.data)
	} else {
		for i := range m.data {
			m.data[i] = byte(i % 251)
		}
	}

	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the origin's base URL.
func (m *MockServer) URL() string { return m.Server.URL }

// FileURL returns a URL whose path ends in the given filename.
func (m *MockServer) FileURL(name string) string { return m.Server.URL + "/" + name }

// Close shuts the origin down.
func (m *MockServer) Close() { m.Server.Close() }

// Data returns the served content.
func (m *MockServer) Data() []byte { return m.data }

func (m *MockServer) setCommonHeaders(w http.ResponseWriter) {
	if m.SupportsRanges || m.IgnoreRange {
		w.Header().Set("Accept-Ranges", "bytes")
	}
	if m.ETag != "" {
		w.Header().Set("ETag", m.ETag)
	}
	if m.LastModified != "" {
		w.Header().Set("Last-Modified", m.LastModified)
	}
	if m.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", m.Filename))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.RequestCount.Add(1)

	if r.Method == http.MethodHead {
		m.HeadRequests.Add(1)
		if m.NoHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		m.setCommonHeaders(w)
		w.Header().Set("Content-Length", strconv.FormatInt(m.FileSize, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	m.mu.Lock()
	m.getSeen++
	failing := m.FailStatus != 0 && (m.FailFirstN == 0 || m.getSeen <= m.FailFirstN)
	m.mu.Unlock()
	if failing {
		w.WriteHeader(m.FailStatus)
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" && m.RejectRange {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	start, end := int64(0), m.FileSize-1
	partial := false
	if rangeHeader != "" && m.SupportsRanges && !m.IgnoreRange {
		if s, e, ok := parseRange(rangeHeader, m.FileSize); ok {
			start, end, partial = s, e, true
		}
	}
	if partial {
		m.RangeRequests.Add(1)
	} else {
		m.FullRequests.Add(1)
	}

	m.setCommonHeaders(w)
	body := m.data[start : end+1]
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(body)), 10))
	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, m.FileSize))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if m.BytesPerSec > 0 {
		m.writePaced(w, r, body)
		return
	}
	_, _ = w.Write(body)
}

// writePaced streams the body through a token bucket so tests can observe
// transfers in flight.
func (m *MockServer) writePaced(w http.ResponseWriter, r *http.Request, body []byte) {
	limiter := rate.NewLimiter(rate.Limit(m.BytesPerSec), m.BytesPerSec/4+1)
	flusher, _ := w.(http.Flusher)
	const chunk = 4 * 1024
	for off := 0; off < len(body); off += chunk {
		endOff := off + chunk
		if endOff > len(body) {
			endOff = len(body)
		}
		if err := limiter.WaitN(r.Context(), endOff-off); err != nil {
			return
		}
		if _, err := w.Write(body[off:endOff]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// parseRange understands "bytes=a-b" and "bytes=a-".
func parseRange(header string, size int64) (int64, int64, bool) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end := size - 1
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true
}
