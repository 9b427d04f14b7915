package intake

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"golang.org/x/text/cases"
)

// ScanDirectory returns the sorted names of regular files directly inside dir
// whose extension is in extensions. Matching is case-insensitive and
// subdirectories are never entered. An empty result is not an error.
func ScanDirectory(fsys billy.Filesystem, dir string, extensions []string) ([]string, error) {
	info, err := fsys.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(KindDirectoryNotFound, dir, err)
		}
		return nil, newError(KindFileRead, dir, err)
	}
	if !info.IsDir() {
		return nil, newError(KindDirectoryNotFound, dir, errors.New("not a directory"))
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, newError(KindFileRead, dir, err)
	}

	fold := cases.Fold()
	accepted := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		accepted[fold.String(ext)] = struct{}{}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !isRegular(fsys, dir, entry) {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == "" {
			continue
		}
		if _, ok := accepted[fold.String(ext)]; ok {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// isRegular follows symlinks so a link to a regular file counts as a candidate.
func isRegular(fsys billy.Filesystem, dir string, entry os.FileInfo) bool {
	mode := entry.Mode()
	if mode.IsRegular() {
		return true
	}
	if mode&fs.ModeSymlink == 0 {
		return false
	}
	target, err := fsys.Stat(fsys.Join(dir, entry.Name()))
	if err != nil {
		return false
	}
	return target.Mode().IsRegular()
}
