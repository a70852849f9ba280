package engine

// Mirror, resume-validator, checksum, retry, and network option accessors.
// Setters exist for the fields the manager mutates after creation; bulk
// option application goes through ApplyOptions.

// Mirrors returns a copy of the mirror URL list.
func (t *Task) Mirrors() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.mirrors...)
}

// MirrorIndex returns the index of the mirror currently in use.
func (t *Task) MirrorIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mirrorIndex
}

// SetMirrors replaces the mirror list and rewinds to the first entry.
func (t *Task) SetMirrors(urls []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mirrors = append([]string(nil), urls...)
	if len(t.mirrors) > 0 {
		t.mirrorIndex = 0
	}
}

// AdvanceMirror moves to the next mirror, clearing the resume validators
// since a different origin invalidates them. Returns false when the list
// is exhausted.
func (t *Task) AdvanceMirror() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.mirrors) == 0 || t.mirrorIndex+1 >= len(t.mirrors) {
		return false
	}
	t.mirrorIndex++
	t.etag = ""
	t.lastModified = ""
	return true
}

// SetResumeInfo seeds the resume validators from a saved session.
func (t *Task) SetResumeInfo(etag, lastModified string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.etag = etag
	t.lastModified = lastModified
}

// ClearResumeInfo drops the validators (used on mirror failover restore).
func (t *Task) ClearResumeInfo() {
	t.SetResumeInfo("", "")
}

// ETag returns the stored entity tag.
func (t *Task) ETag() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.etag
}

// LastModified returns the stored Last-Modified value.
func (t *Task) LastModified() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastModified
}

// SupportsRange reports whether the origin accepted byte ranges.
func (t *Task) SupportsRange() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supportsRange
}

// Checksum returns the task's verification state.
func (t *Task) Checksum() ChecksumInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checksum
}

// SetChecksumAlgorithm records the algorithm name.
func (t *Task) SetChecksumAlgorithm(algo string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checksum.Algorithm = algo
}

// SetChecksumState moves the verification state machine.
func (t *Task) SetChecksumState(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checksum.State = state
}

// SetChecksumActual records a computed digest.
func (t *Task) SetChecksumActual(actual string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checksum.Actual = actual
}

// VerifyOnComplete reports whether a hash runs after every completion.
func (t *Task) VerifyOnComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.verifyOnComplete
}

// RetryMax returns the per-task retry cap; -1 inherits the manager default.
func (t *Task) RetryMax() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryMax
}

// RetryDelaySec returns the per-task retry delay; -1 inherits the default.
func (t *Task) RetryDelaySec() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryDelaySec
}

// PostActions returns the post-completion flags and script template.
func (t *Task) PostActions() (openFile, revealFolder, extract bool, script string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.postOpenFile, t.postRevealFolder, t.postExtract, t.postScript
}

// CustomHeaders returns a copy of the raw header lines.
func (t *Task) CustomHeaders() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.customHeaders...)
}

// CookieHeader returns the raw cookie header, if set.
func (t *Task) CookieHeader() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cookieHeader
}

// BasicAuth returns the configured credentials.
func (t *Task) BasicAuth() (user, password string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authUser, t.authPassword
}

// ProxyInfo returns the per-task proxy settings.
func (t *Task) ProxyInfo() Proxy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.proxy
}

// SetUserAgent overrides the default User-Agent string.
func (t *Task) SetUserAgent(ua string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ua != "" {
		t.userAgent = ua
	}
}
