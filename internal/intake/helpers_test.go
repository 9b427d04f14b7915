package intake_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

const inbox = "/inbox"

func newFS(t *testing.T, files map[string]string) billy.Filesystem {
	t.Helper()
	fsys := memfs.New()
	require.NoError(t, fsys.MkdirAll(inbox, 0o755))
	for name, content := range files {
		writeFile(t, fsys, filepath.Join(inbox, name), content)
	}
	return fsys
}

func writeFile(t *testing.T, fsys billy.Filesystem, path, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fsys, path, []byte(content), 0o644))
}

func readFile(t *testing.T, fsys billy.Filesystem, path string) string {
	t.Helper()
	f, err := fsys.Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

// faultFS injects read and rename failures on top of another filesystem.
type faultFS struct {
	billy.Filesystem
	unreadable map[string]bool
	failRename bool
}

func (f *faultFS) Open(name string) (billy.File, error) {
	if f.unreadable[filepath.Base(name)] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Filesystem.Open(name)
}

func (f *faultFS) Rename(from, to string) error {
	if f.failRename {
		return errors.New("no space left on device")
	}
	return f.Filesystem.Rename(from, to)
}

// stepClock returns a strictly increasing time on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
