package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
)

// runSingle performs the single-stream transfer. When resume is set and a
// partial temp exists, the request carries Range/If-Range; the server may
// still invalidate the resume (200) or reject it (4xx), both of which
// restart from byte zero within the same attempt.
//
// Temp policy: if a ".part" sibling exists or the final file does not,
// writes go to "<file>.part" and rename into place on success; otherwise
// the transfer continues directly into the existing file.
func (t *Task) runSingle(ctx context.Context, gen uint64, resume bool) {
	t.mu.Lock()
	if gen != t.gen || t.state != StateDownloading {
		t.mu.Unlock()
		return
	}
	filePath := t.filePath
	tempPath := filePath + ".part"
	hasTemp := fileRegular(tempPath)
	hasMain := fileRegular(filePath)
	useTemp := hasTemp || !hasMain
	writePath := filePath
	if useTemp {
		writePath = tempPath
	}

	resumeSingle := resume && t.useRange
	var existingSize int64
	if resumeSingle {
		if info, err := os.Stat(writePath); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			existingSize = info.Size()
		} else {
			resumeSingle = false
		}
	}
	t.single = singleState{path: writePath, useTemp: useTemp}
	if resumeSingle {
		t.single.written = existingSize
	}
	activeURL := t.currentURLLocked()
	etag, lastModified := t.etag, t.lastModified
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, activeURL, nil)
	if err != nil {
		t.setError()
		t.finishSingle(gen)
		return
	}
	t.applyNetworkOptions(req)
	if resumeSingle {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existingSize))
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
		t.log.Warn().Err(err).Msg("single-stream request failed")
		t.AppendLog("GET error: " + err.Error())
		t.setError()
		t.finishSingle(gen)
		return
	}
	defer resp.Body.Close()

	t.captureValidators(resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"))

	t.mu.Lock()
	switch resp.StatusCode {
	case http.StatusPartialContent:
		t.supportsRange = true
	case http.StatusOK:
		t.supportsRange = false
	}
	t.mu.Unlock()

	if resumeSingle && resp.StatusCode >= 400 {
		// The range request itself was rejected; restart from zero
		// without Range in the same attempt.
		resp.Body.Close()
		os.Truncate(writePath, 0)
		t.mu.Lock()
		t.single.written = 0
		t.resumeWarning = "Resume rejected; restarting"
		t.mu.Unlock()
		t.AppendLog("Resume rejected; restarting from 0")
		t.runSingle(ctx, gen, false)
		return
	}
	if !resumeSingle && resp.StatusCode >= 400 {
		t.AppendLog(fmt.Sprintf("GET HTTP error status %d", resp.StatusCode))
		t.setError()
		t.finishSingle(gen)
		return
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumeSingle && resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		// Either a fresh transfer or a resume the server ignored (200):
		// truncate and write the whole body.
		flags |= os.O_TRUNC
		if resumeSingle {
			t.mu.Lock()
			t.single.written = 0
			if existingSize > 0 {
				t.resumeWarning = "Resume not supported; restarted"
			}
			t.mu.Unlock()
			if existingSize > 0 {
				t.AppendLog("Resume not supported; restarted")
			}
		}
	}

	f, err := os.OpenFile(writePath, flags, 0644)
	if err != nil {
		t.log.Warn().Err(err).Str("path", writePath).Msg("cannot open output file")
		t.setError()
		t.finishSingle(gen)
		return
	}

	add := func(n int64) {
		t.mu.Lock()
		t.single.written += n
		t.mu.Unlock()
	}
	copyErr := t.copyBody(ctx, resp.Body, f, nil, add)
	f.Close()
	if copyErr != nil {
		if ctx.Err() != nil {
			return // paused or canceled; temp stays for resume
		}
		t.AppendLog("GET error: " + copyErr.Error())
		t.setError()
	}
	t.finishSingle(gen)
}

func fileRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// finishSingle finalizes a single-stream attempt: rename the temp into
// place when one was used, then report the terminal state.
func (t *Task) finishSingle(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != StateDownloading || t.finishing {
		t.mu.Unlock()
		return
	}
	t.finishing = true

	if !t.anyError && t.single.useTemp && t.single.path != "" && t.single.path != t.filePath {
		if fileRegular(t.filePath) {
			os.Remove(t.filePath)
		}
		if err := os.Rename(t.single.path, t.filePath); err != nil {
			t.log.Error().Err(err).Msg("finalize rename failed")
			t.anyError = true
		}
	}
	t.state = StateFinished
	ok := !t.anyError
	t.mu.Unlock()

	t.sink.OnStateChanged(t.id)
	t.sink.OnFinished(t.id, ok)
}
