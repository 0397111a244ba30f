package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Keyer derives cache keys. All callers sharing a cache must use the same
// Keyer so that equal inputs map to equal keys.
type Keyer interface {
	// LayerKey identifies a decoded layer buffer by its source file state.
	LayerKey(path string, size int64, modTime time.Time) string

	// PaletteKey identifies the dominant-color result for an encoded image.
	PaletteKey(imageHash string, clusters int) string
}

// DefaultKeyer produces "kind:sha256(parts)" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// LayerKey implements Keyer.
func (DefaultKeyer) LayerKey(path string, size int64, modTime time.Time) string {
	return hashKey("layer", path, size, modTime.UnixNano())
}

// PaletteKey implements Keyer.
func (DefaultKeyer) PaletteKey(imageHash string, clusters int) string {
	return hashKey("palette", imageHash, clusters)
}

// hashKey returns "kind:" followed by the SHA-256 of the parts, each
// written in %v form and NUL-terminated so adjacent parts cannot merge.
func hashKey(kind string, parts ...any) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%v\x00", p)
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil))
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
