package engine

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/raad-downloader/raad/internal/testutil"
)

func TestHeadProbe(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(123456),
		testutil.WithETag(`"tag-1"`),
		testutil.WithLastModified("Mon, 01 Jan 2024 00:00:00 GMT"),
	)
	defer server.Close()

	task := New(server.FileURL("x.bin"), filepath.Join(t.TempDir(), "x.bin"), 4, nil, zerolog.Nop())
	result, err := task.head(t.Context(), server.URL()+"/x.bin")
	if err != nil {
		t.Fatal(err)
	}
	if result.totalSize != 123456 {
		t.Errorf("totalSize = %d", result.totalSize)
	}
	if !result.acceptRanges {
		t.Error("acceptRanges should be true")
	}
	if result.etag != `"tag-1"` {
		t.Errorf("etag = %q", result.etag)
	}
	if result.lastModified == "" {
		t.Error("lastModified missing")
	}
}

func TestApplyNetworkOptions(t *testing.T) {
	task := New("https://example.com/f", filepath.Join(t.TempDir(), "f"), 1, nil, zerolog.Nop())
	task.ApplyOptions(Options{
		Headers: []string{
			"X-Custom: yes",
			"Range: bytes=0-10",    // reserved, must be skipped
			"If-Range: something",  // reserved, must be skipped
			": empty-key",          // skipped
			"no-separator-at-all",  // skipped
			"  X-Trim  :  spaced ", // trimmed
		},
		CookieHeader:  "session=abc",
		AuthUser:      "alice",
		AuthPassword:  "secret",
		RetryMax:      -1,
		RetryDelaySec: -1,
	})

	req, _ := http.NewRequest(http.MethodGet, "https://example.com/f", nil)
	task.applyNetworkOptions(req)

	if req.Header.Get("User-Agent") != "raad/1.0" {
		t.Errorf("user agent = %q", req.Header.Get("User-Agent"))
	}
	if req.Header.Get("X-Custom") != "yes" {
		t.Error("custom header missing")
	}
	if req.Header.Get("X-Trim") != "spaced" {
		t.Errorf("trimmed header = %q", req.Header.Get("X-Trim"))
	}
	if req.Header.Get("Range") != "" || req.Header.Get("If-Range") != "" {
		t.Error("reserved headers must not be injectable")
	}
	if req.Header.Get("Cookie") != "session=abc" {
		t.Error("cookie header missing")
	}
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:secret"))
	if req.Header.Get("Authorization") != wantAuth {
		t.Errorf("authorization = %q", req.Header.Get("Authorization"))
	}
}

func TestRedirectNeverDowngrades(t *testing.T) {
	client := newClient(Proxy{})

	// http target reached from an https chain must be refused.
	insecure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer insecure.Close()

	secure := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, insecure.URL, http.StatusFound)
	}))
	defer secure.Close()

	client.Transport = secure.Client().Transport
	resp, err := client.Get(secure.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("https to http redirect must fail")
	}
}
