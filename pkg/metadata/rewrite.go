package metadata

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/nftgen/pkg/errors"
)

// NormalizeBase turns a bare content id into "ipfs://{cid}/" and makes sure
// a full base URI ends with a slash.
func NormalizeBase(base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "base URI cannot be empty")
	}
	if !strings.Contains(base, "://") {
		cid := strings.Trim(base, "/")
		if cid == "" {
			return "", errors.New(errors.ErrCodeInvalidInput, "invalid content id %q", base)
		}
		return "ipfs://" + cid + "/", nil
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base, nil
}

// RewriteImage replaces everything up to the final path segment of image
// with base. base must already be normalized.
func RewriteImage(image, base string) string {
	return base + image[strings.LastIndex(image, "/")+1:]
}

// UpdateBaseURIForAll rewrites the image field of every record in dir to
// point at newBase, which may be a bare content id or a full base URI.
// Each file is re-serialized with Marshal and replaced atomically, so
// running it twice with the same base yields identical bytes. The first
// file that cannot be parsed or written aborts the pass; files rewritten
// before it keep their new contents. Returns the number of files rewritten.
func UpdateBaseURIForAll(dir, newBase string, logger *log.Logger) (int, error) {
	if logger == nil {
		logger = log.Default()
	}
	base, err := NormalizeBase(newBase)
	if err != nil {
		return 0, err
	}
	logger.Info("updating base uri for all images", "base", base, "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeIO, err, "read metadata directory %s", dir)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		r, err := Read(path)
		if err != nil {
			return n, err
		}
		r.Image = RewriteImage(r.Image, base)
		if err := writeFile(dir, e.Name(), r); err != nil {
			return n, err
		}
		logger.Debug("rewrote metadata", "path", path, "image", r.Image)
		n++
	}
	return n, nil
}
