package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// run is the transfer entry point: probe the origin, then dispatch into
// segmented or single-stream mode per the decision table.
func (t *Task) run(ctx context.Context, gen uint64, activeURL string, hasExistingFile, hasPartialSegments bool) {
	defer t.wg.Done()

	probe, err := t.head(ctx, activeURL)
	if ctx.Err() != nil {
		return
	}

	t.mu.Lock()
	if gen != t.gen || t.state != StateDownloading {
		t.mu.Unlock()
		return
	}
	if err != nil {
		// Unknown size; single stream with Range resume enabled.
		t.totalSize = 0
		t.useRange = !t.rangeDowngraded
		t.mu.Unlock()
		t.log.Debug().Err(err).Msg("probe failed, falling back to single stream")
		t.AppendLog("HEAD failed, fallback to single stream")
		t.runSingle(ctx, gen, hasExistingFile)
		return
	}

	if probe.etag != "" {
		t.etag = probe.etag
	}
	if probe.lastModified != "" {
		t.lastModified = probe.lastModified
	}

	if probe.totalSize <= 0 {
		t.totalSize = 0
		t.useRange = false
		t.mu.Unlock()
		t.log.Debug().Msg("no content length, single stream without resume")
		t.runSingle(ctx, gen, false)
		return
	}

	t.totalSize = probe.totalSize
	t.supportsRange = probe.acceptRanges
	t.useRange = probe.acceptRanges && !t.rangeDowngraded

	if !t.useRange || t.segments == 1 {
		t.mu.Unlock()
		t.runSingle(ctx, gen, hasExistingFile)
		return
	}

	count := segmentCount(t.totalSize, t.segments)
	t.segs = planSegments(t.filePath, t.totalSize, count)
	if !hasPartialSegments {
		for _, s := range t.segs {
			if s.Downloaded > 0 {
				s.Downloaded = 0
				os.Remove(s.TempPath)
			}
		}
	}
	// Parts beyond the effective count are stale leftovers.
	for i := count; i < t.segments; i++ {
		os.Remove(partPath(t.filePath, i))
	}

	pending := make([]*Segment, 0, len(t.segs))
	for _, s := range t.segs {
		if s.Downloaded < s.Length() {
			pending = append(pending, s)
		}
	}
	t.mu.Unlock()

	if len(pending) == 0 {
		// Everything already on disk; just merge.
		t.segmentDone(gen)
		return
	}
	for _, s := range pending {
		t.wg.Add(1)
		go t.runSegment(ctx, gen, activeURL, s)
	}
}

// runSegment fetches one byte range into its part file.
func (t *Task) runSegment(ctx context.Context, gen uint64, activeURL string, seg *Segment) {
	defer t.wg.Done()

	f, err := os.OpenFile(seg.TempPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.log.Warn().Err(err).Str("part", seg.TempPath).Msg("cannot open part file")
		t.setError()
		t.segmentDone(gen)
		return
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, activeURL, nil)
	if err != nil {
		t.setError()
		t.segmentDone(gen)
		return
	}

	t.mu.Lock()
	offset := seg.Start + seg.Downloaded
	etag, lastModified := t.etag, t.lastModified
	resuming := seg.Downloaded > 0
	t.mu.Unlock()

	t.applyNetworkOptions(req)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, seg.End))
	if resuming {
		if etag != "" {
			req.Header.Set("If-Range", etag)
		} else if lastModified != "" {
			req.Header.Set("If-Range", lastModified)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.log.Warn().Err(err).Int("segment", seg.Index).Msg("segment request failed")
		t.AppendLog("SEGMENT error: " + err.Error())
		t.setError()
		t.segmentDone(gen)
		return
	}
	defer resp.Body.Close()

	t.captureValidators(resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"))

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		// Normal range response.
	case resp.StatusCode == http.StatusOK && t.wholeFileRange(seg):
		// A 200 for a range spanning the whole file is acceptable.
	case resp.StatusCode == http.StatusOK:
		// Server ignored Range; abandon segmentation entirely.
		t.log.Warn().Msg("range ignored by server, switching to single stream")
		t.downgradeToSingle(gen)
		return
	default:
		t.log.Warn().Int("status", resp.StatusCode).Int("segment", seg.Index).Msg("segment request rejected")
		t.AppendLog(fmt.Sprintf("SEGMENT HTTP error status %d", resp.StatusCode))
		t.setError()
		t.segmentDone(gen)
		return
	}

	if err := t.copyBody(ctx, resp.Body, f, seg, nil); err != nil {
		if ctx.Err() != nil {
			return
		}
		t.AppendLog("SEGMENT error: " + err.Error())
		t.setError()
	}
	t.segmentDone(gen)
}

func (t *Task) wholeFileRange(seg *Segment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.segs) <= 1 || (seg.Start == 0 && t.totalSize > 0 && seg.End == t.totalSize-1)
}

func (t *Task) setError() {
	t.mu.Lock()
	if t.state == StateDownloading {
		t.anyError = true
	}
	t.mu.Unlock()
}

func (t *Task) captureValidators(etag, lastModified string) {
	t.mu.Lock()
	if etag != "" {
		t.etag = etag
	}
	if lastModified != "" {
		t.lastModified = lastModified
	}
	t.mu.Unlock()
}

// copyBody streams the response through the shared throttle into the
// destination file, advancing either the segment's counter or the
// single-stream counter. Each partial write is followed by a short drain
// delay; an exhausted window backs off a little longer.
func (t *Task) copyBody(ctx context.Context, body io.Reader, f *os.File, seg *Segment, singleAdd func(int64)) error {
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if err := t.throttledWrite(ctx, f, buf[:n], seg, singleAdd); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read: %w", readErr)
		}
	}
}

func (t *Task) throttledWrite(ctx context.Context, f *os.File, p []byte, seg *Segment, singleAdd func(int64)) error {
	for len(p) > 0 {
		grant := t.throttle.Grant(int64(len(p)))
		if grant <= 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(throttleRetryDelay):
			}
			continue
		}

		n, err := f.Write(p[:grant])
		if n > 0 {
			t.mu.Lock()
			if seg != nil {
				seg.Downloaded += int64(n)
			}
			received := t.totalDownloadedLocked()
			total := t.totalSize
			t.mu.Unlock()
			if singleAdd != nil {
				singleAdd(int64(n))
				t.mu.Lock()
				received = t.totalDownloadedLocked()
				t.mu.Unlock()
			}
			t.sink.OnProgress(t.id, received, total)
			t.updateSpeedAndETA()
		}
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		p = p[n:]

		if len(p) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(throttleDrainDelay):
			}
		}
	}
	return nil
}

// segmentDone runs after each segment's exchange ends. Once every segment
// is complete the merge is serialized under the task lock, mirroring the
// event-loop ordering the pipeline is specified against.
func (t *Task) segmentDone(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != StateDownloading || t.finishing {
		t.mu.Unlock()
		return
	}
	for _, s := range t.segs {
		if s.Downloaded < s.Length() {
			t.mu.Unlock()
			return
		}
	}
	t.finishing = true

	if t.anyError {
		t.state = StateFinished
		t.mu.Unlock()
		t.sink.OnStateChanged(t.id)
		t.sink.OnFinished(t.id, false)
		return
	}

	mergeErr := t.mergeSegmentsLocked()
	if mergeErr != nil {
		t.log.Error().Err(mergeErr).Msg("merge failed")
		t.anyError = true
	}
	t.state = StateFinished
	ok := !t.anyError
	t.mu.Unlock()

	if mergeErr != nil {
		t.AppendLog("Merge failed: " + mergeErr.Error())
	}
	t.sink.OnStateChanged(t.id)
	t.sink.OnFinished(t.id, ok)
}

// mergeSegmentsLocked stream-copies the parts into the final file in
// order, deleting each on success. On failure parts stay in place for a
// later retry. Caller holds t.mu.
func (t *Task) mergeSegmentsLocked() error {
	out, err := os.OpenFile(t.filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open final: %w", err)
	}

	buf := make([]byte, mergeBufferSize)
	for _, s := range t.segs {
		part, err := os.Open(s.TempPath)
		if err != nil {
			out.Close()
			return fmt.Errorf("open part %d: %w", s.Index, err)
		}
		if _, err := io.CopyBuffer(out, part, buf); err != nil {
			part.Close()
			out.Close()
			return fmt.Errorf("copy part %d: %w", s.Index, err)
		}
		part.Close()
		os.Remove(s.TempPath)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close final: %w", err)
	}
	return nil
}

// downgradeToSingle abandons a segmented transfer whose server ignored
// Range: siblings are cancelled via a generation bump, parts removed, and
// a fresh single-stream attempt started from byte zero.
func (t *Task) downgradeToSingle(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != StateDownloading {
		t.mu.Unlock()
		return
	}
	t.useRange = false
	t.supportsRange = false
	t.rangeDowngraded = true
	t.resumeWarning = "Range ignored; switched to single stream"
	oldCancel := t.cancel

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.gen++
	newGen := t.gen

	for _, s := range t.segs {
		s.Downloaded = 0
		os.Remove(s.TempPath)
	}
	t.segs = nil
	t.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	t.AppendLog("Range ignored; switched to single stream")
	t.sink.OnStateChanged(t.id)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runSingle(ctx, newGen, false)
	}()
}
