// Package catalog describes the closed set of product families the
// marketplace sells and where each family keeps its products and stock.
package catalog

import (
	"fmt"
	"strings"
)

type Family string

const (
	FamilyFrame       Family = "frame"
	FamilySunglass    Family = "sunglass"
	FamilyContactLens Family = "contact_lens"
	FamilyAccessory   Family = "accessory"
)

// Descriptor maps a family to its storage. An empty VariantTable means the
// family keeps price and stock on the product row itself.
type Descriptor struct {
	Family       Family
	ProductTable string
	VariantTable string
}

func (d Descriptor) HasVariants() bool { return d.VariantTable != "" }

var descriptors = []Descriptor{
	{Family: FamilyFrame, ProductTable: "frames", VariantTable: "frame_variants"},
	{Family: FamilySunglass, ProductTable: "sunglasses", VariantTable: "sunglass_variants"},
	{Family: FamilyContactLens, ProductTable: "contact_lenses", VariantTable: "contact_lens_variants"},
	{Family: FamilyAccessory, ProductTable: "accessories"},
}

// Descriptors returns a copy of the family table.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

func Lookup(f Family) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Family == f {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ParseFamily normalizes a stored type tag. Unknown tags are an error.
func ParseFamily(tag string) (Family, error) {
	f := Family(strings.ToLower(strings.TrimSpace(tag)))
	if _, ok := Lookup(f); !ok {
		return "", fmt.Errorf("unknown product family %q", tag)
	}
	return f, nil
}

// Validate checks the family table for duplicates and missing tables.
func Validate() error {
	seen := make(map[Family]struct{}, len(descriptors))
	tables := make(map[string]Family, len(descriptors)*2)
	for _, d := range descriptors {
		if d.Family == "" || d.ProductTable == "" {
			return fmt.Errorf("catalog: incomplete descriptor %+v", d)
		}
		if _, dup := seen[d.Family]; dup {
			return fmt.Errorf("catalog: duplicate family %q", d.Family)
		}
		seen[d.Family] = struct{}{}
		for _, t := range []string{d.ProductTable, d.VariantTable} {
			if t == "" {
				continue
			}
			if other, dup := tables[t]; dup {
				return fmt.Errorf("catalog: table %q shared by %q and %q", t, other, d.Family)
			}
			tables[t] = d.Family
		}
	}
	return nil
}
