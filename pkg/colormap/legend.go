// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package colormap

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Legend renders the palette as a table of colored swatches followed by class index and name,
// with the given number of columns.
//
// The profile controls the terminal escape codes used: pass termenv.EnvColorProfile() for the
// current terminal, or termenv.Ascii for plain text.
func (t *Table) Legend(columns int, profile termenv.Profile) string {
	if columns <= 0 {
		columns = 1
	}
	renderer := lipgloss.NewRenderer(io.Discard)
	renderer.SetColorProfile(profile)
	nameWidth := 0
	for classIdx := range t.palette {
		nameWidth = max(nameWidth, len(t.Name(classIdx)))
	}
	cellStyle := renderer.NewStyle().Width(nameWidth + 6).PaddingLeft(1).PaddingRight(2)

	cells := make([]string, 0, len(t.palette))
	for classIdx, c := range t.palette {
		swatch := renderer.NewStyle().Background(lipgloss.Color(c.Hex())).Render("   ")
		if profile == termenv.Ascii {
			swatch = "[" + c.Hex() + "]"
		}
		label := cellStyle.Render(fmt.Sprintf("%2d %s", classIdx, t.Name(classIdx)))
		cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Center, swatch, label))
	}

	var rows []string
	for start := 0; start < len(cells); start += columns {
		end := min(start+columns, len(cells))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells[start:end]...))
	}
	return strings.Join(rows, "\n")
}
