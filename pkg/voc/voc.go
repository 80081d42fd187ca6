// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package voc provides the PASCAL VOC 2012 segmentation dataset: its class palette, download of the
// trainval archive, and reading of the image/label pairs of a split.
//
// Usage:
//
//	root, err := voc.Download("~/work/voc")
//	split, err := voc.ReadSplit(ctx, root, voc.Train, 8, true)
//	ds, err := split.Dataset(segdata.NewConfig(voc.NewTable(), 320, 480))
package voc

import (
	"github.com/gomlx/vocseg/pkg/colormap"
)

// Palette of the VOC label images: the color of class i is Palette[i].
var Palette = colormap.Palette{
	{0, 0, 0}, {128, 0, 0}, {0, 128, 0}, {128, 128, 0},
	{0, 0, 128}, {128, 0, 128}, {0, 128, 128}, {128, 128, 128},
	{64, 0, 0}, {192, 0, 0}, {64, 128, 0}, {192, 128, 0},
	{64, 0, 128}, {192, 0, 128}, {64, 128, 128}, {192, 128, 128},
	{0, 64, 0}, {128, 64, 0}, {0, 192, 0}, {128, 192, 0},
	{0, 64, 128},
}

// ClassNames are index-aligned with Palette.
var ClassNames = []string{
	"background", "aeroplane", "bicycle", "bird", "boat",
	"bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person",
	"potted plant", "sheep", "sofa", "train", "tv/monitor",
}

// NumClasses in the VOC segmentation task, including background.
const NumClasses = 21

// VoidColor marks object boundaries and difficult regions in the label images. It is not a class:
// it decodes according to the table's colormap.UnknownPolicy.
var VoidColor = colormap.RGB{R: 224, G: 224, B: 192}

// NewTable returns the lookup table for the VOC palette, with the default unknown color policy.
func NewTable() *colormap.Table {
	return colormap.MustNewTable(Palette, ClassNames)
}
