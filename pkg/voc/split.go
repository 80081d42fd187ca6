// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package voc

import (
	"bufio"
	"context"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/vocseg/pkg/segdata"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Split names defined by VOC 2012 for segmentation.
const (
	Train    = "train"
	Val      = "val"
	TrainVal = "trainval"
)

// Sub-directories of the dataset root.
const (
	SplitsDir   = "ImageSets/Segmentation"
	FeaturesDir = "JPEGImages"
	LabelsDir   = "SegmentationClass"
)

// Split holds the raw images of one split, in the order listed by the split file.
type Split struct {
	Name string

	// IDs of the examples, e.g. "2007_000032".
	IDs []string

	// Features are the RGB photos, Labels the color-coded label images, index-aligned with IDs.
	Features, Labels []image.Image
}

// Len returns the number of examples in the split.
func (s *Split) Len() int { return len(s.IDs) }

// Dataset builds a segdata.Dataset from the split's images, named after the split.
func (s *Split) Dataset(config *segdata.Config) (*segdata.Dataset, error) {
	return config.WithName(s.Name).Build(s.Features, s.Labels)
}

// FeaturePath returns the path of the photo of example id.
func FeaturePath(root, id string) string {
	return filepath.Join(root, FeaturesDir, id+".jpg")
}

// LabelPath returns the path of the label image of example id.
func LabelPath(root, id string) string {
	return filepath.Join(root, LabelsDir, id+".png")
}

// ReadIDs returns the example ids listed in the file of the given split, one per line.
func ReadIDs(root, split string) ([]string, error) {
	splitPath := filepath.Join(root, filepath.FromSlash(SplitsDir), split+".txt")
	f, err := os.Open(splitPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open split %q", split)
	}
	defer func() { _ = f.Close() }()
	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "while reading %q", splitPath)
	}
	return ids, nil
}

// readParallelism returns the number of goroutines used to decode images.
func readParallelism(parallelism int) int {
	if parallelism <= 0 {
		return runtime.NumCPU()
	}
	return parallelism
}

// ReadSplit reads all the photos and label images of the split under root, decoding them with
// parallelism goroutines (if <= 0, one per core).
//
// Any missing or undecodable image fails the whole split. Cancelling ctx stops the reading.
func ReadSplit(ctx context.Context, root, split string, parallelism int, showProgressBar bool) (*Split, error) {
	ids, err := ReadIDs(root, split)
	if err != nil {
		return nil, err
	}
	s := &Split{
		Name:     split,
		IDs:      ids,
		Features: make([]image.Image, len(ids)),
		Labels:   make([]image.Image, len(ids)),
	}
	var bar *progressbar.ProgressBar
	if showProgressBar {
		bar = progressbar.NewOptions(len(ids),
			progressbar.OptionSetDescription("reading "+split),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish())
	}

	var numPixels atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(readParallelism(parallelism))
	for ii, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			feature, err := imaging.Open(FeaturePath(root, id))
			if err != nil {
				return errors.Wrapf(err, "split %q, example %q", split, id)
			}
			label, err := imaging.Open(LabelPath(root, id))
			if err != nil {
				return errors.Wrapf(err, "split %q, example %q", split, id)
			}
			s.Features[ii], s.Labels[ii] = feature, label
			bounds := feature.Bounds()
			numPixels.Add(int64(bounds.Dx() * bounds.Dy()))
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	klog.V(1).Infof("split %q: read %d examples, %s pixels", split, len(ids), humanize.Comma(numPixels.Load()))
	return s, nil
}
