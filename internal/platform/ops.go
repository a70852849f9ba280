// Package platform wraps the OS-specific actions run after a download
// finishes: opening files, revealing them in a file manager, extracting
// archives, and running user script templates.
package platform

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// Ops is the post-action surface the manager drives. One implementation
// per OS family; tests substitute a recorder.
type Ops interface {
	OpenFile(path string) error
	RevealInFolder(path string) error
	// Extract unpacks an archive next to itself. Returns false when the
	// extension isn't a known archive type; a missing extractor tool is
	// reported through the error.
	Extract(path string) (bool, error)
	// RunScript executes a user script template with {file} and {dir}
	// substituted.
	RunScript(template, path string) error
}

// New returns the Ops implementation for the current OS.
func New(log zerolog.Logger) Ops {
	return &systemOps{log: log}
}

type systemOps struct {
	log zerolog.Logger
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (o *systemOps) OpenFile(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return startDetached("open", path)
	case "windows":
		return startDetached("cmd", "/C", "start", "", path)
	}
	return startDetached("xdg-open", path)
}

func (o *systemOps) RevealInFolder(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return startDetached("open", "-R", path)
	case "windows":
		return startDetached("explorer", "/select,"+filepath.FromSlash(path))
	}
	// No portable "select" on Linux; open the containing directory.
	return startDetached("xdg-open", filepath.Dir(path))
}

func (o *systemOps) Extract(path string) (bool, error) {
	if runtime.GOOS == "windows" {
		return false, nil
	}
	dir := filepath.Dir(path)
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return true, startDetached("unzip", "-o", path, "-d", dir)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".tar.bz2"),
		strings.HasSuffix(lower, ".tar"):
		return true, startDetached("tar", "-xf", path, "-C", dir)
	}
	return false, nil
}

func (o *systemOps) RunScript(template, path string) error {
	resolved := strings.ReplaceAll(template, "{file}", path)
	resolved = strings.ReplaceAll(resolved, "{dir}", filepath.Dir(path))
	o.log.Debug().Str("script", resolved).Msg("running post-download script")
	if runtime.GOOS == "windows" {
		return startDetached("cmd", "/C", resolved)
	}
	return startDetached("/bin/sh", "-c", resolved)
}
