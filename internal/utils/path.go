package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UniqueFilePath returns a path that collides with neither an existing
// file nor its in-progress ".part" sibling, appending " (n)" before the
// extension until free. Applying it twice yields the same path.
func UniqueFilePath(p string) string {
	if p == "" {
		return p
	}
	exists := func(candidate string) bool {
		return FileOrDirExists(candidate) || FileOrDirExists(candidate+".part")
	}
	if !exists(p) {
		return p
	}

	dir := filepath.Dir(p)
	ext := filepath.Ext(p)
	base := strings.TrimSuffix(filepath.Base(p), ext)
	for i := 1; i < 10000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if !exists(candidate) {
			return candidate
		}
	}
	return p
}

// BytesReceivedOnDisk reconstructs the downloaded byte count from whatever
// partial files are on disk: numbered segment parts first, then the single
// ".part" temp, then the final file itself.
func BytesReceivedOnDisk(filePath string, segments int) int64 {
	if filePath == "" {
		return 0
	}

	var partsTotal int64
	anyParts := false
	if segments < 1 {
		segments = 1
	}
	for i := 0; i < segments; i++ {
		info, err := os.Stat(fmt.Sprintf("%s.part%d", filePath, i))
		if err != nil || info.IsDir() {
			continue
		}
		anyParts = true
		partsTotal += info.Size()
	}
	if anyParts {
		return partsTotal
	}

	if info, err := os.Stat(filePath + ".part"); err == nil && !info.IsDir() {
		return info.Size()
	}
	if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
		return info.Size()
	}
	return 0
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FileOrDirExists reports whether path exists at all.
func FileOrDirExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RenameTaskFiles moves a download's final file plus any ".part"/".partN"
// siblings to a new base path. Refuses to clobber: if both old and new
// main files exist the move is rejected.
func RenameTaskFiles(oldPath, newPath string, segments int) bool {
	if oldPath == "" || newPath == "" {
		return false
	}
	if oldPath == newPath {
		return true
	}
	if FileOrDirExists(newPath) && FileOrDirExists(oldPath) {
		return false
	}

	ok := true
	if FileOrDirExists(oldPath) {
		ok = ok && os.Rename(oldPath, newPath) == nil
	}
	if FileOrDirExists(oldPath + ".part") {
		ok = ok && os.Rename(oldPath+".part", newPath+".part") == nil
	}
	if segments < 1 {
		segments = 1
	}
	for i := 0; i < segments; i++ {
		oldPart := fmt.Sprintf("%s.part%d", oldPath, i)
		if !FileOrDirExists(oldPart) {
			continue
		}
		newPart := fmt.Sprintf("%s.part%d", newPath, i)
		if FileOrDirExists(newPart) {
			continue
		}
		ok = ok && os.Rename(oldPart, newPart) == nil
	}
	return ok
}
