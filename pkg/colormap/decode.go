// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package colormap

import (
	"image"
	"image/color"

	"k8s.io/klog/v2"
)

// LabelMap holds one class index per pixel, row-major, shaped [Height, Width].
type LabelMap struct {
	Height, Width int
	Data          []int32

	// NumUnrecognized is the number of pixels whose color was not in the palette.
	NumUnrecognized int
}

// NewLabelMap allocates a LabelMap filled with class 0.
func NewLabelMap(height, width int) *LabelMap {
	return &LabelMap{Height: height, Width: width, Data: make([]int32, height*width)}
}

// At returns the class index at row y and column x.
func (m *LabelMap) At(y, x int) int32 {
	return m.Data[y*m.Width+x]
}

// Shape returns the dimensions [Height, Width].
func (m *LabelMap) Shape() []int {
	return []int{m.Height, m.Width}
}

// Histogram counts the pixels of each class in [0, numClasses). Other values (e.g. IgnoreIndex) are
// not counted.
func (m *LabelMap) Histogram(numClasses int) []int {
	counts := make([]int, numClasses)
	for _, v := range m.Data {
		if v >= 0 && int(v) < numClasses {
			counts[v]++
		}
	}
	return counts
}

// Decode converts a color-coded label image into a LabelMap, looking up every pixel in the table.
//
// Colors not in the palette are decoded to UnknownValue and counted in LabelMap.NumUnrecognized.
// Alpha is ignored.
func (t *Table) Decode(img image.Image) *LabelMap {
	bounds := img.Bounds()
	m := NewLabelMap(bounds.Dy(), bounds.Dx())
	switch typed := img.(type) {
	case *image.NRGBA:
		t.decodePix(m, typed.Pix, typed.Stride, typed.PixOffset(bounds.Min.X, bounds.Min.Y), false)
	case *image.RGBA:
		t.decodePix(m, typed.Pix, typed.Stride, typed.PixOffset(bounds.Min.X, bounds.Min.Y), true)
	case *image.Paletted:
		t.decodePaletted(m, typed)
	default:
		pos := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				classIdx, known := t.Index(RGB{R: c.R, G: c.G, B: c.B})
				if !known {
					m.NumUnrecognized++
				}
				m.Data[pos] = int32(classIdx)
				pos++
			}
		}
	}
	if m.NumUnrecognized > 0 && klog.V(2).Enabled() {
		klog.Infof("colormap: %d of %d pixels with colors not in palette, decoded as %d (%s)",
			m.NumUnrecognized, len(m.Data), t.UnknownValue(), t.policy)
	}
	return m
}

// decodePix decodes 4-bytes per pixel buffers (RGBA or NRGBA), starting at offset.
// If premultiplied (RGBA), pixels that are not opaque are converted to non-premultiplied colors first.
func (t *Table) decodePix(m *LabelMap, pix []uint8, stride, offset int, premultiplied bool) {
	unknown := int32(t.UnknownValue())
	pos := 0
	for y := 0; y < m.Height; y++ {
		row := pix[offset+y*stride : offset+y*stride+4*m.Width]
		for x := 0; x < m.Width; x++ {
			r, g, b, a := row[4*x], row[4*x+1], row[4*x+2], row[4*x+3]
			if premultiplied && a != 0xFF {
				c := color.NRGBAModel.Convert(color.RGBA{R: r, G: g, B: b, A: a}).(color.NRGBA)
				r, g, b = c.R, c.G, c.B
			}
			key := (uint32(r)*256+uint32(g))*256 + uint32(b)
			v := t.entries[key]
			if v == unsetEntry {
				m.Data[pos] = unknown
				m.NumUnrecognized++
			} else {
				m.Data[pos] = int32(v)
			}
			pos++
		}
	}
}

// decodePaletted resolves each color of the image's own palette once, and then maps the pixel indices.
func (t *Table) decodePaletted(m *LabelMap, img *image.Paletted) {
	classes := make([]int32, len(img.Palette))
	known := make([]bool, len(img.Palette))
	for ii, c := range img.Palette {
		nrgba := color.NRGBAModel.Convert(c).(color.NRGBA)
		classIdx, ok := t.Index(RGB{R: nrgba.R, G: nrgba.G, B: nrgba.B})
		classes[ii], known[ii] = int32(classIdx), ok
	}
	bounds := img.Bounds()
	pos := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		offset := img.PixOffset(bounds.Min.X, y)
		for _, colorIdx := range img.Pix[offset : offset+m.Width] {
			if int(colorIdx) >= len(classes) {
				// Corrupt index, outside the image palette.
				m.Data[pos] = int32(t.UnknownValue())
				m.NumUnrecognized++
			} else {
				m.Data[pos] = classes[colorIdx]
				if !known[colorIdx] {
					m.NumUnrecognized++
				}
			}
			pos++
		}
	}
}
