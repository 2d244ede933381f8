package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteClip stands in for a downloaded clip: size placeholder bytes at path,
// creating parent directories. A non-positive size writes one byte so the file
// passes the non-empty checks on saved assets.
func WriteClip(t testing.TB, path string, size int) {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'c'}, size), 0o644); err != nil {
		t.Fatalf("write clip %s: %v", path, err)
	}
}
