package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
)

// DefaultChunkSize is the read block used when streaming file content.
const DefaultChunkSize = 4096

type syncer interface {
	Sync() error
}

// WriteAtomic replaces path with data by writing a sibling temp file, syncing
// it when the filesystem supports it, and renaming it over the target. Readers
// observe either the previous content or the new content, never a mix.
func WriteAtomic(fsys billy.Filesystem, path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure directory: %w", err)
	}
	tmp, err := fsys.TempFile(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = fsys.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if s, ok := tmp.(syncer); ok {
		if err = s.Sync(); err != nil {
			return fmt.Errorf("sync temp file: %w", err)
		}
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = fsys.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// DigestReader streams r through SHA-256 in chunkSize blocks and returns the
// hex digest and the number of bytes read.
func DigestReader(r io.Reader, chunkSize int) (string, int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	hasher := sha256.New()
	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(hasher, onlyReader{r}, buf)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// onlyReader hides WriterTo so io.CopyBuffer honours the chunk size.
type onlyReader struct {
	io.Reader
}
