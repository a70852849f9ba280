package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raad-downloader/raad/internal/utils"
)

// HTTP client tuning.
const (
	defaultMaxIdleConns    = 32
	defaultIdleConnTimeout = 90 * time.Second
	dialTimeout            = 10 * time.Second
	keepAliveDuration      = 30 * time.Second
	tlsHandshakeTimeout    = 10 * time.Second
	maxRedirects           = 10
)

// Proxy is an optional per-task HTTP proxy with basic auth.
type Proxy struct {
	Host     string
	Port     int
	User     string
	Password string
}

func (p Proxy) enabled() bool {
	return p.Host != "" && p.Port > 0
}

func (p Proxy) url() *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u
}

// newClient builds the task's HTTP client. Redirects follow a no-less-safe
// policy: an https origin is never allowed to redirect down to http.
func newClient(proxy Proxy) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: keepAliveDuration,
		}).DialContext,
	}
	if proxy.enabled() {
		transport.Proxy = http.ProxyURL(proxy.url())
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			if via[0].URL.Scheme == "https" && req.URL.Scheme != "https" {
				return errors.New("refusing https to http redirect")
			}
			return nil
		},
	}
}

// reservedHeaders may not be injected via custom headers; the engine owns them.
var reservedHeaders = map[string]bool{
	"range":    true,
	"if-range": true,
}

// applyNetworkOptions sets the task's cookie, basic auth, and custom
// headers on a request. Custom headers are "Name: Value" lines; empty
// keys and reserved names are skipped.
func (t *Task) applyNetworkOptions(req *http.Request) {
	t.mu.Lock()
	cookie := t.cookieHeader
	user, pass := t.authUser, t.authPassword
	headers := append([]string(nil), t.customHeaders...)
	ua := t.userAgent
	t.mu.Unlock()

	req.Header.Set("User-Agent", ua)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	for _, line := range headers {
		sep := strings.Index(line, ":")
		if sep <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		if key == "" || reservedHeaders[strings.ToLower(key)] {
			continue
		}
		req.Header.Set(key, value)
	}
}

// probeResult carries the metadata from the HEAD request.
type probeResult struct {
	totalSize    int64
	etag         string
	lastModified string
	acceptRanges bool
}

// head issues the metadata probe against rawurl. A transport error and an
// HTTP error status (>= 400) are both returned as err; the caller falls
// through to single stream in either case.
func (t *Task) head(ctx context.Context, rawurl string) (probeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawurl, nil)
	if err != nil {
		return probeResult{}, err
	}
	t.applyNetworkOptions(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return probeResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return probeResult{}, fmt.Errorf("head status %d", resp.StatusCode)
	}

	result := probeResult{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		totalSize:    resp.ContentLength,
		acceptRanges: utils.AcceptsByteRanges(resp.Header),
	}
	return result, nil
}
