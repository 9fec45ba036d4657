package main

import (
	"fmt"
	"io"
	"time"

	"horoscope/internal/models"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorOrange = "\033[38;5;208m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

var noColor bool

var variantColors = map[string]string{
	models.VariantGreen:  colorGreen,
	models.VariantBlue:   colorBlue,
	models.VariantYellow: colorYellow,
	models.VariantOrange: colorOrange,
	models.VariantRed:    colorRed,
}

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printFortune(w io.Writer, h models.Horoscope) {
	level := colorize(colorBold+variantColors[h.Level.Variant()], "★ "+h.Level.Label())
	fmt.Fprintln(w, level)
	fmt.Fprintf(w, "  %s\n", h.Description)
	if h.Note != "" {
		fmt.Fprintf(w, "  %s\n", colorize(colorDim, h.Note))
	}
}

// formatCountdown renders d as hours and minutes, rounding up so the last
// minute before midnight never shows as 0h00m.
func formatCountdown(d time.Duration) string {
	if d <= 0 {
		return "0h00m"
	}
	minutes := int((d + time.Minute - 1) / time.Minute)
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}
