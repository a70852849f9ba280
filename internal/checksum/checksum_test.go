package checksum

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.bin")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileKnownDigests(t *testing.T) {
	// Digests of the empty input are well known.
	path := writeTemp(t, nil)
	cases := map[string]string{
		"MD5":    "d41d8cd98f00b204e9800998ecf8427e",
		"SHA1":   "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		"SHA256": "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	}
	for algo, want := range cases {
		got, err := File(path, algo)
		if err != nil {
			t.Fatalf("%s: %v", algo, err)
		}
		if got != want {
			t.Errorf("%s = %s, want %s", algo, got, want)
		}
	}
}

func TestAlgorithmNamesCaseInsensitive(t *testing.T) {
	path := writeTemp(t, []byte("abc"))
	a, err1 := File(path, "sha256")
	b, err2 := File(path, " SHA256 ")
	if err1 != nil || err2 != nil {
		t.Fatal(err1, err2)
	}
	if a != b {
		t.Error("algorithm name casing should not matter")
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	if Supported("CRC32") {
		t.Error("CRC32 is not supported")
	}
	if _, err := File(writeTemp(t, nil), "CRC32"); err != ErrUnknownAlgorithm {
		t.Errorf("err = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "missing"), "SHA256"); err == nil {
		t.Error("missing file must error")
	}
}

func TestFileAsync(t *testing.T) {
	path := writeTemp(t, []byte("hello"))
	done := make(chan string, 1)
	FileAsync(path, "SHA256", func(digest string, err error) {
		if err != nil {
			t.Error(err)
		}
		done <- digest
	})
	select {
	case digest := <-done:
		want, _ := File(path, "SHA256")
		if digest != want {
			t.Errorf("async digest %s != sync %s", digest, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}
