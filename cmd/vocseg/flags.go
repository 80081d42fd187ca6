// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"strings"
)

var (
	flagPalette    = listFlag("palette", "Comma-separated \"#rrggbb\" colors replacing the VOC palette.")
	flagClassNames = listFlag("class_names", "Comma-separated class names, one per -palette color.")
)

// listFlag creates a flag holding a comma-separated list of strings. Items are trimmed of spaces.
func listFlag(name, usage string) *[]string {
	f := &stringList{}
	flag.Var(f, name, usage)
	return &f.items
}

// stringList implements flag.Value.
type stringList struct {
	items []string
}

func (f *stringList) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.items, ",")
}

func (f *stringList) Set(listStr string) error {
	f.items = nil
	if strings.TrimSpace(listStr) == "" {
		return nil
	}
	for _, part := range strings.Split(listStr, ",") {
		f.items = append(f.items, strings.TrimSpace(part))
	}
	return nil
}
