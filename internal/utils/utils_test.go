package utils

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNameFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/files/report.pdf", "report.pdf"},
		{"https://example.com/files/report.pdf?token=abc", "report.pdf"},
		{"https://cdn.example.com/x?filename=video.mp4", "video.mp4"},
		{"https://s3.example.com/obj?response-content-disposition=attachment%3B%20filename%3D%22data.zip%22", "data.zip"},
		{"https://example.com/", ""},
		{"https://example.com", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FileNameFromURL(c.url), c.url)
	}
}

func TestFilenameFromDisposition(t *testing.T) {
	assert.Equal(t, "report.pdf", FilenameFromDisposition(`attachment; filename="report.pdf"`))
	assert.Equal(t, "plain.txt", FilenameFromDisposition(`attachment; filename=plain.txt`))
	assert.Equal(t, "", FilenameFromDisposition(""))
}

func TestAcceptsByteRanges(t *testing.T) {
	h := http.Header{}
	assert.False(t, AcceptsByteRanges(h))
	h.Set("Accept-Ranges", "bytes")
	assert.True(t, AcceptsByteRanges(h))
	h.Set("Accept-Ranges", "none")
	assert.False(t, AcceptsByteRanges(h))
}

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"Example.COM":               "example.com",
		"https://Example.com/a/b":   "example.com",
		"example.com:8080":          "example.com",
		"  example.com/path  ":      "example.com",
		"":                          "",
		"http://mirror.EXAMPLE.org": "mirror.example.org",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHost(in), in)
	}
}

func TestLooksLikeGUIDName(t *testing.T) {
	assert.True(t, LooksLikeGUIDName("a1b2c3d4-e5f6-7890-abcd-ef1234567890"))
	assert.False(t, LooksLikeGUIDName("report.pdf"))
	assert.False(t, LooksLikeGUIDName(""))
	assert.False(t, LooksLikeGUIDName("a1b2c3d4-e5f6-7890-abcd-ef1234567890.zip"))
}

func TestUniqueFilePathIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	// Free path is returned unchanged, twice.
	assert.Equal(t, path, UniqueFilePath(path))
	assert.Equal(t, UniqueFilePath(path), UniqueFilePath(UniqueFilePath(path)))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	got := UniqueFilePath(path)
	assert.Equal(t, filepath.Join(dir, "file (1).txt"), got)

	// A .part sibling also blocks the base name.
	partBlocked := filepath.Join(dir, "other.bin")
	require.NoError(t, os.WriteFile(partBlocked+".part", []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "other (1).bin"), UniqueFilePath(partBlocked))
}

func TestBytesReceivedOnDisk(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "dl.bin")

	assert.EqualValues(t, 0, BytesReceivedOnDisk(base, 4))

	// Numbered parts win over everything else.
	require.NoError(t, os.WriteFile(fmt.Sprintf("%s.part0", base), make([]byte, 100), 0644))
	require.NoError(t, os.WriteFile(fmt.Sprintf("%s.part2", base), make([]byte, 50), 0644))
	assert.EqualValues(t, 150, BytesReceivedOnDisk(base, 4))

	os.Remove(fmt.Sprintf("%s.part0", base))
	os.Remove(fmt.Sprintf("%s.part2", base))

	require.NoError(t, os.WriteFile(base+".part", make([]byte, 77), 0644))
	assert.EqualValues(t, 77, BytesReceivedOnDisk(base, 4))

	os.Remove(base + ".part")
	require.NoError(t, os.WriteFile(base, make([]byte, 33), 0644))
	assert.EqualValues(t, 33, BytesReceivedOnDisk(base, 4))
}

func TestDetectCategory(t *testing.T) {
	cases := map[string]string{
		"movie.mkv":    "Video",
		"song.flac":    "Audio",
		"photo.jpeg":   "Images",
		"bundle.tar":   "Archives",
		"notes.pdf":    "Documents",
		"setup.exe":    "Programs",
		"unknown.xyz":  "Other",
		"no-extension": "Other",
	}
	for name, want := range cases {
		assert.Equal(t, want, DetectCategory(name), name)
	}
}

func TestDetectCategoryIdentityWhenExplicit(t *testing.T) {
	// Re-detection of an already-categorized name is stable.
	first := DetectCategory("clip.mp4")
	assert.Equal(t, first, DetectCategory("clip.mp4"))
}

func TestDetectChecksumAlgo(t *testing.T) {
	assert.Equal(t, "MD5", DetectChecksumAlgo("d41d8cd98f00b204e9800998ecf8427e"))
	assert.Equal(t, "SHA1", DetectChecksumAlgo("da39a3ee5e6b4b0d3255bfef95601890afd80709"))
	assert.Equal(t, "SHA256", DetectChecksumAlgo("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"))
	assert.Equal(t, "", DetectChecksumAlgo("short"))
}

func TestNormalizeChecksum(t *testing.T) {
	assert.Equal(t, "abcdef", NormalizeChecksum("  AB CD EF "))
}

func TestRenameTaskFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.bin")
	newPath := filepath.Join(dir, "new.bin")

	require.NoError(t, os.WriteFile(oldPath, []byte("main"), 0644))
	require.NoError(t, os.WriteFile(oldPath+".part", []byte("tmp"), 0644))
	require.NoError(t, os.WriteFile(oldPath+".part0", []byte("p0"), 0644))

	require.True(t, RenameTaskFiles(oldPath, newPath, 4))
	assert.True(t, FileExists(newPath))
	assert.True(t, FileExists(newPath+".part"))
	assert.True(t, FileExists(newPath+".part0"))
	assert.False(t, FileExists(oldPath))

	// Refuses to clobber when both mains exist.
	require.NoError(t, os.WriteFile(oldPath, []byte("again"), 0644))
	assert.False(t, RenameTaskFiles(oldPath, newPath, 4))
}

func TestConvertBytesToHumanReadable(t *testing.T) {
	assert.Equal(t, "512 B", ConvertBytesToHumanReadable(512))
	assert.Equal(t, "1.0 KiB", ConvertBytesToHumanReadable(1024))
	assert.Equal(t, "1.5 MiB", ConvertBytesToHumanReadable(1536*1024))
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "--", FormatETA(-1))
	assert.Equal(t, "45s", FormatETA(45))
	assert.Equal(t, "2m05s", FormatETA(125))
	assert.Equal(t, "1h01m", FormatETA(3660))
}
