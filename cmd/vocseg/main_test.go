// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList(t *testing.T) {
	var f stringList
	require.NoError(t, f.Set(" #000000, #800000 "))
	assert.Equal(t, []string{"#000000", "#800000"}, f.items)
	assert.Equal(t, "#000000,#800000", f.String())
	require.NoError(t, f.Set(""))
	assert.Empty(t, f.items)
}

func TestLoadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vocseg.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("crop_height = 200\nbatch_size = 16\nseed = 5\n"), 0o644))
	for name, value := range map[string]string{
		"config":      configPath,
		"batch":       "32",
		"palette":     "#000000,#ff0000",
		"class_names": "background,red",
	} {
		require.NoError(t, flag.Set(name, value))
	}
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.CropHeight, "from the file")
	assert.Equal(t, 32, cfg.BatchSize, "flag overrides the file")
	assert.Equal(t, int64(5), cfg.Seed)
	table, err := cfg.Table()
	require.NoError(t, err)
	assert.Equal(t, 2, table.NumClasses())
	assert.Equal(t, "red", table.Name(1))
}
