package layer

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/matzehuels/nftgen/pkg/errors"
)

// WeightDelimiter separates a variant's display name from its selection
// weight in a layer filename, e.g. "red#5.png".
const WeightDelimiter = "#"

// DefaultWeight is used when a filename carries no parsable weight.
const DefaultWeight = 1

// Variant is one concrete image option within a category.
// Variants are immutable once discovered.
type Variant struct {
	Name   string // display name: filename stem up to WeightDelimiter
	Path   string // source PNG path
	Weight int    // selection weight, always > 0
}

// ParseVariant builds a Variant from a layer file path. The returned bool is
// false when the weight was absent or unparsable and DefaultWeight was used;
// callers log that as a warning. A stem that is not valid UTF-8, or whose
// name part is empty, is an INVALID_FILENAME error.
func ParseVariant(path string) (Variant, bool, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if !utf8.ValidString(stem) {
		return Variant{}, false, errors.New(errors.ErrCodeInvalidFilename, "layer filename is not valid UTF-8: %q", path)
	}

	name, weightStr, _ := strings.Cut(stem, WeightDelimiter)
	if name == "" {
		return Variant{}, false, errors.New(errors.ErrCodeInvalidFilename, "layer filename has an empty name: %q", path)
	}

	weight, ok := parseWeight(weightStr)
	return Variant{Name: name, Path: path, Weight: weight}, ok, nil
}

// parseWeight parses the weight part of a stem. Weights must be positive;
// anything else falls back to DefaultWeight.
func parseWeight(s string) (int, bool) {
	w, err := strconv.Atoi(s)
	if err != nil || w <= 0 {
		return DefaultWeight, false
	}
	return w, true
}

// isLayerFile reports whether name has a PNG extension.
func isLayerFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".png")
}
