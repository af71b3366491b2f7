package exporter

import (
	"fmt"
	"strconv"
	"strings"
)

// formatFloat formats a reconciled value for CSV output with exactly 2
// decimal places, so values like 13.4 appear as 13.40 in every row.
func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

// formatRawValue keeps full precision so raw window exports round-trip
// exactly through ParseFloat.
func formatRawValue(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// filenameReplacer strips characters that are unsafe in file names or
// workbook sheet names.
var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"[", "_",
	"]", "_",
)

// sanitizeFilename converts a keyword or anchor id into a safe file
// stem.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(filenameReplacer.Replace(name))
	if name == "" {
		return "series"
	}
	return name
}

// truncateRunes cuts s to at most n characters without splitting a
// rune.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
