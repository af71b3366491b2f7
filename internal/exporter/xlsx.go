package exporter

import (
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"trendscli/internal/errors"
)

// maxSheetName is the workbook hard limit on sheet name length.
const maxSheetName = 31

// ExportWorkbook writes every keyword's merged series into a single
// XLSX workbook, one sheet per keyword.
func (e *SeriesExporter) ExportWorkbook(path string, series []KeywordSeries) error {
	if len(series) == 0 {
		return errors.NewAppValidationError("no series to export to workbook")
	}

	f := excelize.NewFile()
	defer f.Close()

	names := sheetNames(series)
	for i, ks := range series {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), names[i]); err != nil {
				return errors.NewStorageError(fmt.Sprintf("name sheet for %q", ks.Keyword), err)
			}
		} else if _, err := f.NewSheet(names[i]); err != nil {
			return errors.NewStorageError(fmt.Sprintf("create sheet for %q", ks.Keyword), err)
		}
		if err := writeSheet(f, names[i], ks); err != nil {
			return errors.NewStorageError(fmt.Sprintf("write sheet for %q", ks.Keyword), err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.NewStorageError(fmt.Sprintf("save workbook %s", path), err)
	}

	e.logger.Info("workbook exported",
		slog.String("path", path),
		slog.Int("sheets", len(series)))
	return nil
}

func writeSheet(f *excelize.File, sheet string, ks KeywordSeries) error {
	if err := f.SetCellValue(sheet, "A1", "Date"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "B1", ks.Keyword); err != nil {
		return err
	}
	for i, p := range ks.Merged.Points {
		row := i + 2
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", row), p.Date.Format("2006-01-02")); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row), p.Value); err != nil {
			return err
		}
	}
	return nil
}

// sheetNames sanitizes keywords into unique sheet names inside the
// 31-character workbook limit.
func sheetNames(series []KeywordSeries) []string {
	names := make([]string, len(series))
	seen := make(map[string]bool)
	for i, ks := range series {
		base := truncateRunes(sanitizeFilename(ks.Keyword), maxSheetName)
		name := base
		for n := 2; seen[name]; n++ {
			suffix := fmt.Sprintf(" %d", n)
			name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
		}
		seen[name] = true
		names[i] = name
	}
	return names
}
