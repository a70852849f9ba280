// Package utils provides URL, path, and checksum helpers shared by the
// engine and the manager.
package utils

import (
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/vfaronov/httpheader"
)

var guidNameRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// FileNameFromURL derives a filename from the URL itself. CDN-style URLs
// often carry the real name in a content-disposition query parameter; the
// URL path basename is the fallback.
func FileNameFromURL(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}

	q := u.Query()
	disp := q.Get("response-content-disposition")
	if disp == "" {
		disp = q.Get("content-disposition")
	}
	if disp == "" {
		disp = q.Get("rscd")
	}
	if disp != "" {
		if name := FilenameFromDisposition(disp); name != "" {
			return name
		}
	}
	if name := q.Get("filename"); name != "" {
		return path.Base(name)
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// FilenameFromDisposition extracts the filename from a raw
// Content-Disposition value, handling the RFC 8187 filename* form.
func FilenameFromDisposition(value string) string {
	h := http.Header{"Content-Disposition": []string{value}}
	_, filename, _ := httpheader.ContentDisposition(h)
	if filename == "" {
		return ""
	}
	// Strip any path components a hostile server might smuggle in.
	return path.Base(strings.ReplaceAll(filename, `\`, "/"))
}

// FilenameFromResponse reads the filename from a response's
// Content-Disposition header, if present.
func FilenameFromResponse(h http.Header) string {
	if h.Get("Content-Disposition") == "" {
		return ""
	}
	_, filename, _ := httpheader.ContentDisposition(h)
	if filename == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(filename, `\`, "/"))
}

// AcceptsByteRanges reports whether the response advertises byte-range
// support via Accept-Ranges.
func AcceptsByteRanges(h http.Header) bool {
	for _, unit := range strings.Split(h.Get("Accept-Ranges"), ",") {
		if strings.EqualFold(strings.TrimSpace(unit), "bytes") {
			return true
		}
	}
	return false
}

// NormalizeHost lowercases and strips a host down to its bare name so
// domain rules match regardless of how the user typed them.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return ""
	}
	if strings.Contains(h, "://") {
		if u, err := url.Parse(h); err == nil && u.Host != "" {
			h = strings.ToLower(u.Host)
		}
	}
	if idx := strings.Index(h, "/"); idx >= 0 {
		h = h[:idx]
	}
	if idx := strings.Index(h, ":"); idx >= 0 {
		h = h[:idx]
	}
	return h
}

// LooksLikeGUIDName reports whether a filename is a bare GUID, the shape
// some hosts hand out instead of a real name.
func LooksLikeGUIDName(name string) bool {
	return name != "" && guidNameRe.MatchString(name)
}
