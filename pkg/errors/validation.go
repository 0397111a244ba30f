package errors

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidateLayerName validates a category name as it appears in the declared
// layers order. Category names are matched against directory names, so they
// must be plain path components.
func ValidateLayerName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "layer name cannot be empty")
	}
	if !utf8.ValidString(name) {
		return New(ErrCodeInvalidInput, "layer name is not valid UTF-8: %q", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "layer name contains control characters: %q", name)
		}
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidInput, "layer name must be a single path component: %q", name)
	}
	return nil
}

// ValidateLayerOrder checks the declared layers order: it must be non-empty,
// every entry must be a valid layer name, and no name may appear twice.
// Duplicates would give two categories the same stacking position.
func ValidateLayerOrder(order []string) error {
	if len(order) == 0 {
		return New(ErrCodeInvalidInput, "layers order cannot be empty")
	}
	seen := make(map[string]int, len(order))
	for i, name := range order {
		if err := ValidateLayerName(name); err != nil {
			return err
		}
		if prev, ok := seen[name]; ok {
			return New(ErrCodeDuplicateLayer, "layer %q appears twice in layers order (positions %d and %d)", name, prev, i)
		}
		seen[name] = i
	}
	return nil
}

// ValidateCollectionName validates the collection name interpolated into
// every metadata record.
func ValidateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return New(ErrCodeInvalidInput, "collection name cannot be empty")
	}
	if len(name) > 256 {
		return New(ErrCodeInvalidInput, "collection name too long (max 256 characters)")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "collection name contains invalid control characters")
		}
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
