// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package segdata implements a semantic segmentation Dataset: pairs of feature and color-coded label
// images, filtered by size and normalized once, yielding a randomly cropped feature and its decoded
// label map on every access. Loader groups examples into mini-batches, in parallel.
package segdata

import (
	"fmt"
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/vocseg/pkg/colormap"
	"github.com/gomlx/vocseg/pkg/images"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrIndexOutOfRange is returned by Dataset.Get for indices outside [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrPairCountMismatch is returned when the number of feature and label images differ.
	ErrPairCountMismatch = errors.New("number of features and labels differ")

	// ErrInvalidCropSize is returned for non-positive crop dimensions.
	ErrInvalidCropSize = errors.New("invalid crop size")
)

// Source is anything that can be indexed for (feature, label map) examples. Loader consumes it.
type Source interface {
	// Len returns the number of examples.
	Len() int

	// Get returns the idx-th example.
	Get(idx int) (*images.Image, *colormap.LabelMap, error)
}

// RandomSource is a Source whose examples are randomized, and that can use a caller-owned random number
// generator, so parallel callers don't contend on a shared one.
type RandomSource interface {
	Source

	// GetWithRand is like Get, but draws random numbers from rng. rng is not safe for concurrent use,
	// each goroutine must own its own.
	GetWithRand(rng *rand.Rand, idx int) (*images.Image, *colormap.LabelMap, error)
}

// Config holds the configuration of a Dataset. Create it with NewConfig, and once configured call Build.
type Config struct {
	name  string
	table *colormap.Table
	crop  images.Size
	stats images.Stats
	seed  int64
}

// NewConfig creates the configuration of a Dataset that crops examples to cropHeight x cropWidth,
// and decodes labels with table.
//
// Defaults: normalization with images.ImageNetStats and a time-based random seed.
func NewConfig(table *colormap.Table, cropHeight, cropWidth int) *Config {
	return &Config{
		name:  "segmentation",
		table: table,
		crop:  images.Size{Height: cropHeight, Width: cropWidth},
		stats: images.ImageNetStats,
		seed:  time.Now().UTC().UnixNano(),
	}
}

// WithName sets the name of the Dataset, used in logs.
func (c *Config) WithName(name string) *Config {
	c.name = name
	return c
}

// WithStats sets the per-channel statistics used to normalize feature images.
func (c *Config) WithStats(stats images.Stats) *Config {
	c.stats = stats
	return c
}

// WithSeed sets the seed of the random number generator used by Dataset.Get.
func (c *Config) WithSeed(seed int64) *Config {
	c.seed = seed
	return c
}

// Dataset holds normalized feature images and their raw label images, for the examples large enough
// for the crop size.
//
// It is immutable after construction, and safe for concurrent use: Get serializes only the drawing of
// the crop offset, and GetWithRand takes no locks at all.
type Dataset struct {
	name     string
	table    *colormap.Table
	crop     images.Size
	stats    images.Stats
	features []*images.Image
	labels   []*image.NRGBA

	// indices maps each retained example to its position in the list given to Build.
	indices []int

	muRng sync.Mutex
	rng   *rand.Rand
}

// Assert Dataset implements RandomSource.
var _ RandomSource = (*Dataset)(nil)

// Build creates the Dataset from parallel lists of raw feature and label images.
//
// Pairs smaller than the crop size (in either dimension) are dropped, which is not an error.
// The retained features are normalized once, here.
func (c *Config) Build(features, labels []image.Image) (*Dataset, error) {
	if c.table == nil {
		return nil, errors.Errorf("dataset %q: no colormap.Table given", c.name)
	}
	if c.crop.Height <= 0 || c.crop.Width <= 0 {
		return nil, errors.Wrapf(ErrInvalidCropSize, "dataset %q: crop size %s", c.name, c.crop)
	}
	if len(features) != len(labels) {
		return nil, errors.Wrapf(ErrPairCountMismatch, "dataset %q: %d features and %d labels",
			c.name, len(features), len(labels))
	}
	if err := c.stats.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "dataset %q: invalid normalization", c.name)
	}
	ds := &Dataset{
		name:  c.name,
		table: c.table,
		crop:  c.crop,
		stats: c.stats,
		rng:   rand.New(rand.NewSource(c.seed)),
	}
	for ii, feature := range features {
		featureSize, labelSize := images.SizeOf(feature), images.SizeOf(labels[ii])
		if featureSize != labelSize {
			return nil, errors.Wrapf(images.ErrDimensionMismatch, "dataset %q, example #%d: feature is %s, label is %s",
				c.name, ii, featureSize, labelSize)
		}
		if !featureSize.Fits(c.crop) {
			klog.V(2).Infof("dataset %q: dropping example #%d of size %s, smaller than crop %s",
				c.name, ii, featureSize, c.crop)
			continue
		}
		ds.features = append(ds.features, images.Normalize(feature, c.stats))
		ds.labels = append(ds.labels, imaging.Clone(labels[ii]))
		ds.indices = append(ds.indices, ii)
	}
	klog.Infof("read %d examples", len(ds.features))
	klog.V(1).Infof("dataset %q: %d of %d examples dropped for being smaller than %s, %s in memory",
		c.name, len(features)-len(ds.features), len(features), c.crop, humanize.IBytes(uint64(ds.MemoryUsage())))
	return ds, nil
}

// Name of the dataset.
func (ds *Dataset) Name() string { return ds.name }

// String implements fmt.Stringer.
func (ds *Dataset) String() string {
	return fmt.Sprintf("Dataset %q: %d examples, crop %s", ds.name, ds.Len(), ds.crop)
}

// Len returns the number of examples retained.
func (ds *Dataset) Len() int { return len(ds.features) }

// CropSize returns the size of the examples returned by Get.
func (ds *Dataset) CropSize() images.Size { return ds.crop }

// Table used to decode labels.
func (ds *Dataset) Table() *colormap.Table { return ds.table }

// Stats used to normalize the features.
func (ds *Dataset) Stats() images.Stats { return ds.stats }

// SourceIndex returns the position, in the lists given to Build, of the idx-th retained example.
func (ds *Dataset) SourceIndex(idx int) (int, error) {
	if err := ds.checkIndex(idx); err != nil {
		return 0, err
	}
	return ds.indices[idx], nil
}

// Example returns the full (un-cropped) normalized feature and raw label image of the idx-th example.
// They must not be modified.
func (ds *Dataset) Example(idx int) (*images.Image, *image.NRGBA, error) {
	if err := ds.checkIndex(idx); err != nil {
		return nil, nil, err
	}
	return ds.features[idx], ds.labels[idx], nil
}

// MemoryUsage returns an estimate of the bytes held by the features and labels.
func (ds *Dataset) MemoryUsage() int64 {
	var total int64
	for ii, feature := range ds.features {
		total += int64(4*len(feature.Data)) + int64(len(ds.labels[ii].Pix))
	}
	return total
}

func (ds *Dataset) checkIndex(idx int) error {
	if idx < 0 || idx >= len(ds.features) {
		return errors.Wrapf(ErrIndexOutOfRange, "dataset %q: index %d not in [0, %d)", ds.name, idx, len(ds.features))
	}
	return nil
}

// Get returns a random crop of the idx-th example: the cropped normalized feature, shaped
// [3, cropHeight, cropWidth], and the cropped label decoded to class indices, shaped [cropHeight, cropWidth].
//
// Every call draws a new crop, so repeated calls for the same idx return different regions.
func (ds *Dataset) Get(idx int) (*images.Image, *colormap.LabelMap, error) {
	if err := ds.checkIndex(idx); err != nil {
		return nil, nil, err
	}
	ds.muRng.Lock()
	rect, err := images.RandomCropRect(ds.rng, ds.features[idx].Size(), ds.crop)
	ds.muRng.Unlock()
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "dataset %q, example %d", ds.name, idx)
	}
	return ds.cropAndDecode(idx, rect)
}

// GetWithRand implements RandomSource. It is like Get, but draws the crop from rng.
func (ds *Dataset) GetWithRand(rng *rand.Rand, idx int) (*images.Image, *colormap.LabelMap, error) {
	if err := ds.checkIndex(idx); err != nil {
		return nil, nil, err
	}
	rect, err := images.RandomCropRect(rng, ds.features[idx].Size(), ds.crop)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "dataset %q, example %d", ds.name, idx)
	}
	return ds.cropAndDecode(idx, rect)
}

// MustGet is like Get, but panics on error.
func (ds *Dataset) MustGet(idx int) (*images.Image, *colormap.LabelMap) {
	feature, labelMap, err := ds.Get(idx)
	if err != nil {
		Panicf("Dataset.MustGet(%d): %+v", idx, err)
	}
	return feature, labelMap
}

// cropAndDecode crops the idx-th example at rect and decodes the label crop.
func (ds *Dataset) cropAndDecode(idx int, rect image.Rectangle) (*images.Image, *colormap.LabelMap, error) {
	feature, label, err := images.CropPair(ds.features[idx], ds.labels[idx], rect)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "dataset %q, example %d", ds.name, idx)
	}
	return feature, ds.table.Decode(label), nil
}
