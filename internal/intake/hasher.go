package intake

import (
	billy "github.com/go-git/go-billy/v5"

	"mailroom/internal/fileutil"
)

// Digest streams the file at path through SHA-256 in fixed-size chunks and
// returns the lowercase hex digest. Memory use does not depend on file size.
func Digest(fsys billy.Filesystem, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", newError(KindFileRead, path, err)
	}
	defer f.Close()

	digest, _, err := fileutil.DigestReader(f, fileutil.DefaultChunkSize)
	if err != nil {
		return "", newError(KindFileRead, path, err)
	}
	return digest, nil
}
