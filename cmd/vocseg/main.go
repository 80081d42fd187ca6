// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// vocseg downloads PASCAL VOC 2012, builds the segmentation datasets of the train and validation
// splits, and iterates over their batches, printing the class legend and the batch shapes.
//
// Settings come from an optional TOML file (-config), overridden by the flags explicitly set.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/vocseg/internal/config"
	"github.com/gomlx/vocseg/pkg/colormap"
	"github.com/gomlx/vocseg/pkg/segdata"
	"github.com/gomlx/vocseg/pkg/support/fsutil"
	"github.com/gomlx/vocseg/pkg/voc"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	defaults = config.Default()

	flagConfig        = flag.String("config", "", "TOML configuration file. Flags explicitly set override its values.")
	flagDataDir       = flag.String("data", defaults.DataDir, "Directory where to download and extract the dataset.")
	flagDownload      = flag.Bool("download", defaults.Download, "Download the dataset if missing.")
	flagTrainSplit    = flag.String("train_split", defaults.TrainSplit, "Split used for training.")
	flagValSplit      = flag.String("val_split", defaults.ValSplit, "Split used for validation. Empty to skip it.")
	flagCropHeight    = flag.Int("crop_height", defaults.CropHeight, "Height of the random crops.")
	flagCropWidth     = flag.Int("crop_width", defaults.CropWidth, "Width of the random crops.")
	flagBatchSize     = flag.Int("batch", defaults.BatchSize, "Batch size.")
	flagParallelism   = flag.Int("parallelism", defaults.Parallelism, "Number of goroutines decoding images and generating batches. 0 for the number of cores.")
	flagSeed          = flag.Int64("seed", defaults.Seed, "Seed for crops and shuffling. 0 for a time-based seed.")
	flagUnknownColor  = flag.String("unknown_color", defaults.UnknownColor, "Class of label colors not in the palette: \"background\" or \"ignore\".")
	flagNormalization = flag.String("normalization", defaults.Normalization, "Feature normalization: \"imagenet\" or \"dataset\".")
	flagEpochs        = flag.Int("epochs", 1, "Number of epochs to iterate over the train dataset.")
	flagLegendColumns = flag.Int("legend_columns", 3, "Number of columns of the class legend. 0 to skip it.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	err := exceptions.TryCatch[error](run)
	if err != nil {
		klog.Errorf("Failed: %+v", err)
		os.Exit(1)
	}
}

// loadConfig reads the -config file, if given, and applies the flags explicitly set.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		cfg, err = config.Load(*flagConfig)
		if err != nil {
			return cfg, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.DataDir = *flagDataDir
		case "download":
			cfg.Download = *flagDownload
		case "train_split":
			cfg.TrainSplit = *flagTrainSplit
		case "val_split":
			cfg.ValSplit = *flagValSplit
		case "crop_height":
			cfg.CropHeight = *flagCropHeight
		case "crop_width":
			cfg.CropWidth = *flagCropWidth
		case "batch":
			cfg.BatchSize = *flagBatchSize
		case "parallelism":
			cfg.Parallelism = *flagParallelism
		case "seed":
			cfg.Seed = *flagSeed
		case "unknown_color":
			cfg.UnknownColor = *flagUnknownColor
		case "normalization":
			cfg.Normalization = *flagNormalization
		case "palette":
			cfg.Palette = *flagPalette
		case "class_names":
			cfg.ClassNames = *flagClassNames
		}
	})
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return cfg, cfg.Validate()
}

func run() {
	cfg := must.M1(loadConfig())
	klog.V(1).Infof("Configuration:\n%s", cfg)
	table := must.M1(cfg.Table())
	if *flagLegendColumns > 0 {
		fmt.Println(table.Legend(*flagLegendColumns, termenv.EnvColorProfile()))
	}

	var root string
	if cfg.Download {
		root = must.M1(voc.Download(cfg.DataDir))
	} else {
		root = filepath.Join(must.M1(fsutil.ReplaceTildeInDir(cfg.DataDir)), voc.SubDir)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	trainSplit := must.M1(voc.ReadSplit(ctx, root, cfg.TrainSplit, cfg.Parallelism, true))
	stats := must.M1(cfg.Stats(trainSplit.Features))
	fmt.Printf("Normalization: %s\n", stats)

	newConfig := func() *segdata.Config {
		return segdata.NewConfig(table, cfg.CropHeight, cfg.CropWidth).WithStats(stats).WithSeed(cfg.Seed)
	}
	trainDS := must.M1(trainSplit.Dataset(newConfig()))
	fmt.Println(trainDS)
	trainLoader := segdata.NewLoader(trainDS, cfg.BatchSize).
		Shuffle(cfg.Seed).
		Parallelism(cfg.Parallelism).
		Buffer(2).
		DropIncompleteBatch().
		Start()
	defer trainLoader.Close()
	for epoch := range *flagEpochs {
		if epoch > 0 {
			trainLoader.Reset()
		}
		must.M(iterate(ctx, trainLoader, table, epoch == 0))
	}

	if cfg.ValSplit == "" {
		return
	}
	valSplit := must.M1(voc.ReadSplit(ctx, root, cfg.ValSplit, cfg.Parallelism, true))
	valDS := must.M1(valSplit.Dataset(newConfig()))
	fmt.Println(valDS)
	valLoader := segdata.NewLoader(valDS, cfg.BatchSize).Seed(cfg.Seed).Parallelism(cfg.Parallelism).Start()
	defer valLoader.Close()
	must.M(iterate(ctx, valLoader, table, false))
}

// iterate over one epoch of the loader, printing a summary. If showFirst, it also prints the shapes
// and class distribution of the first batch.
func iterate(ctx context.Context, loader *segdata.Loader, table *colormap.Table, showFirst bool) error {
	start := time.Now()
	var numBatches, numExamples, numUnrecognized int
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "%s interrupted", loader.Name())
		}
		batch, err := loader.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if numBatches == 0 && showFirst {
			printBatch(batch, table)
		}
		numBatches++
		numExamples += batch.Len()
		numUnrecognized += batch.NumUnrecognized
	}
	elapsed := time.Since(start)
	fmt.Printf("%s: %s batches, %s examples in %s (%.1f examples/s), %s label pixels with unrecognized colors\n",
		loader.Name(), humanize.Comma(int64(numBatches)), humanize.Comma(int64(numExamples)),
		elapsed.Round(time.Millisecond), float64(numExamples)/elapsed.Seconds(), humanize.Comma(int64(numUnrecognized)))
	return nil
}

func printBatch(batch *segdata.Batch, table *colormap.Table) {
	features, labels := batch.Tensors()
	fmt.Printf("First batch: features %v (%s), labels %v (%s)\n",
		features.Shape(), features.Dtype(), labels.Shape(), labels.Dtype())
	counts := make(map[int32]int)
	for _, v := range batch.Labels {
		counts[v]++
	}
	total := len(batch.Labels)
	for classIdx := range max(table.NumClasses(), colormap.IgnoreIndex+1) {
		if count := counts[int32(classIdx)]; count > 0 {
			fmt.Printf("  %-14s %6.2f%%\n", table.Name(classIdx), 100*float64(count)/float64(total))
		}
	}
}
