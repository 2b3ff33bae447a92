package main

import (
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Status lines go to stderr so command results on stdout stay pipeable.
var out io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return text
	}
	return color + text + colorReset
}

func emit(color, prefix, format string, args ...any) {
	fmt.Fprintln(out, colorize(color, prefix+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { emit(colorGreen, "✓", format, args...) }
func printError(format string, args ...any)   { emit(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { emit(colorYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { emit(colorCyan, "→", format, args...) }

// printStatus renders an indented "Label: value" line for status listings.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(out, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
