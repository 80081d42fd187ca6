// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package colormap converts color-coded segmentation label images into per-pixel class indices.
//
// A Palette lists one RGB color per class, the class id being the position in the palette. NewTable
// builds a dense lookup Table over all 256³ packed RGB keys, which Table.Decode uses to turn a label
// image into a LabelMap.
//
// Colors not in the palette (e.g. anti-aliased borders or the VOC "void" outline) are not errors: they
// decode according to the table's UnknownPolicy, and are counted in LabelMap.NumUnrecognized.
package colormap

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

const (
	// NumKeys is the size of the packed RGB key space, 256³.
	NumKeys = 256 * 256 * 256

	// MaxClasses is the maximum palette size supported by a Table.
	MaxClasses = 255

	// IgnoreIndex is the class index returned for unknown colors with UnknownAsIgnore.
	IgnoreIndex = 255

	// unsetEntry marks keys of the dense table that are not in the palette.
	unsetEntry = uint8(0xFF)
)

var (
	ErrEmptyPalette   = errors.New("empty palette")
	ErrTooManyClasses = errors.New("too many classes in palette")
	ErrDuplicateColor = errors.New("duplicate color in palette")
	ErrNamesMismatch  = errors.New("class names don't match palette")
)

// RGB is an 8-bit per channel color.
type RGB struct {
	R, G, B uint8
}

// String implements fmt.Stringer.
func (c RGB) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.R, c.G, c.B)
}

// Hex returns the color formatted as "#rrggbb".
func (c RGB) Hex() string {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hex()
}

// Key packs the color as r*256² + g*256 + b.
func Key(c RGB) uint32 {
	return (uint32(c.R)*256+uint32(c.G))*256 + uint32(c.B)
}

// Palette is an ordered list of colors, the index being the class id.
type Palette []RGB

// ParsePalette parses colors given as hex strings ("#rrggbb").
func ParsePalette(hexColors []string) (Palette, error) {
	palette := make(Palette, 0, len(hexColors))
	for ii, hex := range hexColors {
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid color #%d %q in palette", ii, hex)
		}
		r, g, b := c.RGB255()
		palette = append(palette, RGB{R: r, G: g, B: b})
	}
	return palette, nil
}

// UnknownPolicy defines the class returned for colors that are not in the palette.
type UnknownPolicy int

const (
	// UnknownAsBackground maps unknown colors to class 0.
	UnknownAsBackground UnknownPolicy = iota

	// UnknownAsIgnore maps unknown colors to IgnoreIndex, so losses can mask them out.
	UnknownAsIgnore
)

// String implements fmt.Stringer.
func (p UnknownPolicy) String() string {
	switch p {
	case UnknownAsBackground:
		return "background"
	case UnknownAsIgnore:
		return "ignore"
	}
	return fmt.Sprintf("UnknownPolicy(%d)", int(p))
}

// ParseUnknownPolicy converts "background" or "ignore" to an UnknownPolicy.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "background":
		return UnknownAsBackground, nil
	case "ignore":
		return UnknownAsIgnore, nil
	}
	return UnknownAsBackground, errors.Errorf("unknown color policy %q, valid values are \"background\" or \"ignore\"", s)
}

// Table maps packed RGB keys to class indices. It is immutable once built and safe for concurrent use.
type Table struct {
	// entries is shared among tables derived with WithUnknownPolicy.
	entries []uint8
	palette Palette
	names   []string
	policy  UnknownPolicy
}

// NewTable builds the dense lookup table for the palette.
//
// names is optional (nil), but if given it must have one name per palette entry.
func NewTable(palette Palette, names []string) (*Table, error) {
	if len(palette) == 0 {
		return nil, ErrEmptyPalette
	}
	if len(palette) > MaxClasses {
		return nil, errors.Wrapf(ErrTooManyClasses, "palette has %d colors, at most %d supported", len(palette), MaxClasses)
	}
	if names != nil && len(names) != len(palette) {
		return nil, errors.Wrapf(ErrNamesMismatch, "%d names given for %d colors", len(names), len(palette))
	}
	t := &Table{
		entries: make([]uint8, NumKeys),
		palette: append(Palette(nil), palette...),
	}
	if names != nil {
		t.names = append([]string(nil), names...)
	}
	for ii := range t.entries {
		t.entries[ii] = unsetEntry
	}
	for classIdx, c := range palette {
		key := Key(c)
		if previous := t.entries[key]; previous != unsetEntry {
			return nil, errors.Wrapf(ErrDuplicateColor, "color %s used by classes %d and %d", c, previous, classIdx)
		}
		t.entries[key] = uint8(classIdx)
	}
	return t, nil
}

// MustNewTable is like NewTable, but panics on error.
func MustNewTable(palette Palette, names []string) *Table {
	t, err := NewTable(palette, names)
	if err != nil {
		panic(err)
	}
	return t
}

// WithUnknownPolicy returns a Table that shares the lookup entries of t, but uses the given policy
// for colors not in the palette.
func (t *Table) WithUnknownPolicy(policy UnknownPolicy) *Table {
	t2 := *t
	t2.policy = policy
	return &t2
}

// UnknownPolicy used by the table.
func (t *Table) UnknownPolicy() UnknownPolicy { return t.policy }

// UnknownValue is the class index returned for colors not in the palette.
func (t *Table) UnknownValue() int {
	if t.policy == UnknownAsIgnore {
		return IgnoreIndex
	}
	return 0
}

// NumClasses is the number of colors in the palette.
func (t *Table) NumClasses() int { return len(t.palette) }

// Lookup returns the class index of a packed RGB key (see Key).
func (t *Table) Lookup(key uint32) int {
	if key >= NumKeys {
		return t.UnknownValue()
	}
	v := t.entries[key]
	if v == unsetEntry {
		return t.UnknownValue()
	}
	return int(v)
}

// Index returns the class index of the color, and whether the color is in the palette.
func (t *Table) Index(c RGB) (classIdx int, known bool) {
	v := t.entries[Key(c)]
	if v == unsetEntry {
		return t.UnknownValue(), false
	}
	return int(v), true
}

// Color of the given class.
func (t *Table) Color(classIdx int) RGB { return t.palette[classIdx] }

// Palette returns a copy of the palette used to build the table.
func (t *Table) Palette() Palette { return append(Palette(nil), t.palette...) }

// Name of the class, or its number if the table has no names.
func (t *Table) Name(classIdx int) string {
	if classIdx == IgnoreIndex && t.policy == UnknownAsIgnore {
		return "ignore"
	}
	if t.names == nil || classIdx < 0 || classIdx >= len(t.names) {
		return fmt.Sprintf("class#%d", classIdx)
	}
	return t.names[classIdx]
}
