// Package metadata assembles, persists, and rewrites the JSON record that
// accompanies every generated image.
//
// A record looks like:
//
//	{"description":"...","name":"Punks #3","image":"ipfs://placeholder/3.png",
//	 "attributes":[{"trait_type":"background","value":"blue"}, ...]}
//
// Records are written to {output}/metadata/{index} with no extension. The
// image field starts as a placeholder and is rewritten once the images have
// a content address.
package metadata

import (
	"fmt"
	"unicode/utf8"

	"github.com/matzehuels/nftgen/pkg/errors"
	"github.com/matzehuels/nftgen/pkg/layer"
)

// Record is one item's metadata. Field order matches the JSON schema.
type Record struct {
	Description string      `json:"description" bson:"description"`
	Name        string      `json:"name" bson:"name"`
	Image       string      `json:"image" bson:"image"`
	Attributes  []Attribute `json:"attributes" bson:"attributes"`
}

// Attribute is one trait: the category name and the chosen variant name.
type Attribute struct {
	TraitType string `json:"trait_type" bson:"trait_type"`
	Value     string `json:"value" bson:"value"`
}

// PlaceholderURI is the image reference written before upload.
func PlaceholderURI(index int) string {
	return fmt.Sprintf("ipfs://placeholder/%d.png", index)
}

// ItemName is the display name of item index in a collection.
func ItemName(collection string, index int) string {
	return fmt.Sprintf("%s #%d", collection, index)
}

// Build assembles the record for item index from the same draws used to
// compose its image. Attributes follow draw order, which is the declared
// layers order. A category or variant name that is not valid text is an
// INVALID_FILENAME error rather than being dropped.
func Build(index int, description, collection string, draws []layer.Draw) (Record, error) {
	attrs := make([]Attribute, 0, len(draws))
	for _, d := range draws {
		if !utf8.ValidString(d.Category) {
			return Record{}, errors.New(errors.ErrCodeInvalidFilename, "category name is not valid UTF-8: %q", d.Category)
		}
		if !utf8.ValidString(d.Variant.Name) {
			return Record{}, errors.New(errors.ErrCodeInvalidFilename, "variant name is not valid UTF-8: %q", d.Variant.Path)
		}
		attrs = append(attrs, Attribute{TraitType: d.Category, Value: d.Variant.Name})
	}

	return Record{
		Description: description,
		Name:        ItemName(collection, index),
		Image:       PlaceholderURI(index),
		Attributes:  attrs,
	}, nil
}

// AddTrait appends a computed trait after the layer attributes.
func (r *Record) AddTrait(traitType, value string) {
	r.Attributes = append(r.Attributes, Attribute{TraitType: traitType, Value: value})
}

// Trait returns the value of the first attribute with the given type.
func (r *Record) Trait(traitType string) (string, bool) {
	for _, a := range r.Attributes {
		if a.TraitType == traitType {
			return a.Value, true
		}
	}
	return "", false
}
