// Package assets persists downloaded clips under the output directory.
package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"scriptreel/internal/services"
	"scriptreel/internal/textutil"
)

const (
	defaultName      = "clip"
	defaultExtension = ".mp4"
	maxCollisions    = 1000
)

// Saver is the local persistence capability used by the orchestrator.
type Saver interface {
	SaveAsset(ctx context.Context, data []byte, suggestedName string) (string, error)
}

// Store writes clips into a single directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir, creating it when needed.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, &services.ValidationError{Field: "output_dir", Reason: "must not be empty"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// SaveAsset writes data durably under a sanitized form of suggestedName and returns
// the final path. An existing file is never overwritten: the name gets a numeric
// suffix instead.
func (s *Store) SaveAsset(ctx context.Context, data []byte, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", &services.ValidationError{Field: "data", Reason: "asset is empty"}
	}
	path, err := s.reserve(suggestedName)
	if err != nil {
		return "", err
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("create pending asset: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("commit asset: %w", err)
	}
	return path, nil
}

// reserve claims a free file name with an exclusive create so concurrent saves with
// the same suggestion cannot pick the same path.
func (s *Store) reserve(suggestedName string) (string, error) {
	base, ext := splitName(suggestedName)
	for i := 0; i < maxCollisions; i++ {
		name := base + ext
		if i > 0 {
			name = base + "-" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(s.dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("reserve asset name: %w", err)
		}
	}
	return "", fmt.Errorf("reserve asset name: too many files named %q", base+ext)
}

func splitName(suggested string) (string, string) {
	name := textutil.SanitizeFileName(filepath.Base(strings.TrimSpace(suggested)))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	ext := filepath.Ext(name)
	base := strings.TrimSpace(strings.TrimSuffix(name, ext))
	if base == "" {
		base = defaultName
	}
	if ext == "" {
		ext = defaultExtension
	}
	return base, strings.ToLower(ext)
}

// Export copies each clip into destDir in order, prefixing names with a sequence
// number, and verifies every copy by size and SHA-256.
func Export(paths []string, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	exported := make([]string, 0, len(paths))
	for i, src := range paths {
		dst := filepath.Join(destDir, fmt.Sprintf("%03d-%s", i, filepath.Base(src)))
		if err := copyVerified(src, dst); err != nil {
			return exported, fmt.Errorf("export %s: %w", src, err)
		}
		exported = append(exported, dst)
	}
	return exported, nil
}

func copyVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	pending, err := renameio.NewPendingFile(dst)
	if err != nil {
		return err
	}
	defer func() { _ = pending.Cleanup() }()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(pending, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if written != srcInfo.Size() {
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		return errors.New("copy hash mismatch")
	}
	return pending.CloseAtomicallyReplace()
}
