// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package config holds the settings of the vocseg command, loaded from an optional TOML file.
//
// Example file:
//
//	data_dir = "~/work/voc"
//	crop_height = 320
//	crop_width = 480
//	batch_size = 64
//	unknown_color = "ignore"
package config

import (
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gomlx/vocseg/pkg/colormap"
	"github.com/gomlx/vocseg/pkg/images"
	"github.com/gomlx/vocseg/pkg/support/fsutil"
	"github.com/gomlx/vocseg/pkg/voc"
	"github.com/pkg/errors"
)

// Normalization modes.
const (
	NormalizeImageNet = "imagenet"
	NormalizeDataset  = "dataset"
)

// Config of a vocseg run.
type Config struct {
	// DataDir is where the VOC archive is downloaded and extracted.
	DataDir string `toml:"data_dir"`

	// Download the dataset if missing. If false DataDir must already hold the extracted dataset.
	Download bool `toml:"download"`

	TrainSplit string `toml:"train_split"`
	ValSplit   string `toml:"val_split"`

	CropHeight int `toml:"crop_height"`
	CropWidth  int `toml:"crop_width"`
	BatchSize  int `toml:"batch_size"`

	// Parallelism of image decoding and of batch generation. 0 uses the number of cores.
	Parallelism int `toml:"parallelism"`

	// Seed for crops and shuffling. 0 means a time-based seed.
	Seed int64 `toml:"seed"`

	// UnknownColor is "background" or "ignore", see colormap.UnknownPolicy.
	UnknownColor string `toml:"unknown_color"`

	// Normalization is NormalizeImageNet or NormalizeDataset (statistics computed on the train split).
	Normalization string `toml:"normalization"`

	// Palette overrides the VOC palette with "#rrggbb" colors. ClassNames must then match it, or be empty.
	Palette    []string `toml:"palette"`
	ClassNames []string `toml:"class_names"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir:       "~/work/voc",
		Download:      true,
		TrainSplit:    voc.Train,
		ValSplit:      voc.Val,
		CropHeight:    320,
		CropWidth:     480,
		BatchSize:     64,
		Parallelism:   4,
		UnknownColor:  colormap.UnknownAsBackground.String(),
		Normalization: NormalizeImageNet,
	}
}

// Load reads the TOML file over the defaults. Keys not known by Config are an error.
func Load(filePath string) (Config, error) {
	c := Default()
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return c, err
	}
	md, err := toml.DecodeFile(filePath, &c)
	if err != nil {
		return c, errors.Wrapf(err, "failed to decode configuration %q", filePath)
	}
	if err = checkUndecoded(md); err != nil {
		return c, errors.WithMessagef(err, "configuration %q", filePath)
	}
	return c, c.Validate()
}

// Parse is like Load, but reads the TOML content from a string.
func Parse(content string) (Config, error) {
	c := Default()
	md, err := toml.Decode(content, &c)
	if err != nil {
		return c, errors.Wrap(err, "failed to decode configuration")
	}
	if err = checkUndecoded(md); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, key := range undecoded {
		keys = append(keys, key.String())
	}
	sort.Strings(keys)
	return errors.Errorf("unknown keys %s", strings.Join(keys, ", "))
}

// Validate checks the values of the configuration.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.TrainSplit == "" {
		return errors.New("train_split must be set")
	}
	if c.CropHeight <= 0 || c.CropWidth <= 0 {
		return errors.Errorf("invalid crop size %dx%d", c.CropHeight, c.CropWidth)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("invalid batch_size %d", c.BatchSize)
	}
	if c.Parallelism < 0 {
		return errors.Errorf("invalid parallelism %d", c.Parallelism)
	}
	if _, err := colormap.ParseUnknownPolicy(c.UnknownColor); err != nil {
		return err
	}
	switch c.Normalization {
	case NormalizeImageNet, NormalizeDataset:
	default:
		return errors.Errorf("invalid normalization %q, valid values are %q or %q",
			c.Normalization, NormalizeImageNet, NormalizeDataset)
	}
	if len(c.Palette) == 0 && len(c.ClassNames) > 0 {
		return errors.New("class_names given without a palette")
	}
	return nil
}

// Table builds the colormap.Table: the VOC one, or the one defined by Palette and ClassNames.
func (c Config) Table() (*colormap.Table, error) {
	policy, err := colormap.ParseUnknownPolicy(c.UnknownColor)
	if err != nil {
		return nil, err
	}
	if len(c.Palette) == 0 {
		return voc.NewTable().WithUnknownPolicy(policy), nil
	}
	palette, err := colormap.ParsePalette(c.Palette)
	if err != nil {
		return nil, err
	}
	table, err := colormap.NewTable(palette, c.ClassNames)
	if err != nil {
		return nil, err
	}
	return table.WithUnknownPolicy(policy), nil
}

// Stats returns the normalization statistics: images.ImageNetStats, or the statistics of trainImages.
func (c Config) Stats(trainImages []image.Image) (images.Stats, error) {
	if c.Normalization == NormalizeDataset {
		return images.ComputeStats(trainImages)
	}
	return images.ImageNetStats, nil
}

// String implements fmt.Stringer, in TOML format.
func (c Config) String() string {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return fmt.Sprintf("%#v", c)
	}
	return sb.String()
}
