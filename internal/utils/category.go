package utils

import (
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Known download categories, in display order. "Auto" means detect from
// the filename extension.
func CategoryNames() []string {
	return []string{"Auto", "Video", "Audio", "Images", "Archives", "Documents", "Programs", "Other"}
}

var documentExts = map[string]bool{
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true,
	"ppt": true, "pptx": true, "txt": true, "md": true,
}

var programExts = map[string]bool{
	"dmg": true, "exe": true, "msi": true, "pkg": true, "app": true,
	"deb": true, "rpm": true, "appimage": true,
}

var archiveExts = map[string]bool{
	"zip": true, "rar": true, "7z": true, "tar": true, "gz": true,
	"bz2": true, "xz": true, "tgz": true,
}

// DetectCategory maps a file path to a coarse content category by its
// extension. The filetype matcher database covers media; documents,
// archives, and installers fall back to explicit extension sets.
func DetectCategory(filePath string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	if ext == "" {
		return "Other"
	}

	if t := filetype.GetType(ext); t != filetype.Unknown {
		switch t.MIME.Type {
		case "video":
			return "Video"
		case "audio":
			return "Audio"
		case "image":
			return "Images"
		}
	}
	switch {
	case ext == "jpeg": // filetype registers JPEG under "jpg" only
		return "Images"
	case archiveExts[ext]:
		return "Archives"
	case documentExts[ext]:
		return "Documents"
	case programExts[ext]:
		return "Programs"
	}
	return "Other"
}
