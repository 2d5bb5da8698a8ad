package grid

import (
	"fmt"
	"strings"
)

// indicator classifies a normalized pressure value into the three
// color-coded bands in spec §4.8.
func indicator(p float64) string {
	switch {
	case p < 0.3:
		return "cold"
	case p < 0.7:
		return "warm"
	default:
		return "hot"
	}
}

// Render draws the fixed 3x4 layout with box-drawing borders, labeling
// each cell with its id, label, and pressure indicator.
func Render(pressure map[string]float64) string {
	var b strings.Builder

	cellText := func(c Cell) string {
		p := pressure[c.ID]
		return fmt.Sprintf("%s %-10s %.2f %s", c.ID, c.Label, p, indicator(p))
	}

	rows := [][]Cell{Cells[0:4], Cells[4:8], Cells[8:12]}
	border := "+" + strings.Repeat(strings.Repeat("-", 22)+"+", 4) + "\n"

	b.WriteString(border)
	for _, row := range rows {
		b.WriteString("|")
		for _, c := range row {
			b.WriteString(fmt.Sprintf(" %-20s |", cellText(c)))
		}
		b.WriteString("\n")
		b.WriteString(border)
	}
	return b.String()
}
