// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package voc

import (
	"path/filepath"

	"github.com/gomlx/vocseg/pkg/downloader"
	"github.com/gomlx/vocseg/pkg/support/fsutil"
	"github.com/pkg/errors"
)

var (
	// DownloadURL of the VOC 2012 trainval archive.
	DownloadURL = "http://host.robots.ox.ac.uk/pascal/VOC/voc2012/VOCtrainval_11-May-2012.tar"

	// DownloadChecksum is the sha256 of the archive. Empty disables the check.
	DownloadChecksum = ""

	// LocalTarFile is the name of the archive under the base directory.
	LocalTarFile = "VOCtrainval_11-May-2012.tar"

	// SubDir is where the archive extracts the dataset, relative to the base directory.
	SubDir = filepath.Join("VOCdevkit", "VOC2012")
)

// Download the VOC 2012 archive into baseDir and extract it, unless already extracted.
// It returns the dataset root directory, to be used with ReadSplit.
//
// baseDir may start with "~", which is replaced by the user's home directory.
func Download(baseDir string) (root string, err error) {
	baseDir, err = fsutil.ReplaceTildeInDir(baseDir)
	if err != nil {
		return "", err
	}
	err = downloader.DownloadAndUntarIfMissing(DownloadURL, baseDir, LocalTarFile, SubDir, DownloadChecksum)
	if err != nil {
		return "", errors.WithMessagef(err, "failed to download VOC 2012 to %q", baseDir)
	}
	return filepath.Join(baseDir, SubDir), nil
}
