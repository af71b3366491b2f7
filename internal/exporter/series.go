package exporter

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"trendscli/internal/config"
	"trendscli/internal/errors"
	"trendscli/pkg/contracts/domain"
)

// KeywordSeries pairs the keyword a run was asked for with its
// reconciled series. The keyword names the output file; the term
// inside Merged carries the resolution metadata for the header row.
type KeywordSeries struct {
	Keyword string
	Merged  domain.MergedSeries
}

// Options configures merged-series output.
type Options struct {
	// QuietIO drops the resolution columns from the header row.
	QuietIO bool
	// SkipExisting makes ShouldSkip report true for keywords whose
	// output file is already on disk, so interrupted batches resume
	// where they stopped.
	SkipExisting bool
}

// SeriesExporter writes one merged-series CSV per keyword.
type SeriesExporter struct {
	csvWriter *CSVWriter
	paths     *config.Paths
	logger    *slog.Logger
	opts      Options
}

// NewSeriesExporter creates a series exporter rooted at the configured
// output directory.
func NewSeriesExporter(paths *config.Paths, logger *slog.Logger, opts Options) *SeriesExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeriesExporter{
		csvWriter: NewCSVWriter(paths),
		paths:     paths,
		logger:    logger.With(slog.String("component", "exporter")),
		opts:      opts,
	}
}

// OutputPath returns the file the merged series for keyword lands in.
func (e *SeriesExporter) OutputPath(keyword string) string {
	return filepath.Join(e.paths.OutputDir, sanitizeFilename(keyword)+".csv")
}

// WorkbookPath returns the XLSX file a workbook named name lands in.
func (e *SeriesExporter) WorkbookPath(name string) string {
	return filepath.Join(e.paths.OutputDir, sanitizeFilename(name)+".xlsx")
}

// ShouldSkip reports whether keyword's run can be skipped entirely
// because its output already exists.
func (e *SeriesExporter) ShouldSkip(keyword string) bool {
	if !e.opts.SkipExisting {
		return false
	}
	exists := config.FileExists(e.OutputPath(keyword))
	if exists {
		e.logger.Info("output exists, skipping keyword",
			slog.String("keyword", keyword))
	}
	return exists
}

// ExportMerged writes one keyword's reconciled series. Rows are
// Date,value; the header row carries the resolution metadata unless
// quiet output is configured.
func (e *SeriesExporter) ExportMerged(ks KeywordSeries) error {
	records := make([][]string, 0, len(ks.Merged.Points))
	for _, p := range ks.Merged.Points {
		records = append(records, []string{p.Date.Format("2006-01-02"), formatFloat(p.Value)})
	}

	path := e.OutputPath(ks.Keyword)
	if err := e.csvWriter.WriteSimpleCSV(path, e.header(ks), records); err != nil {
		return errors.NewStorageError(fmt.Sprintf("write merged series for %q", ks.Keyword), err)
	}

	e.logger.Info("merged series exported",
		slog.String("keyword", ks.Keyword),
		slog.String("path", path),
		slog.Int("points", len(records)))
	return nil
}

// header mirrors the layout downstream analysis scripts expect: search
// terms get Date, keyword and description; resolved entities add the
// canonical title; quiet mode keeps only Date and the keyword.
func (e *SeriesExporter) header(ks KeywordSeries) []string {
	if e.opts.QuietIO {
		return []string{"Date", ks.Keyword}
	}
	term := ks.Merged.Term
	if term.IsEntity() {
		return []string{"Date", ks.Keyword, term.Desc, term.Title}
	}
	desc := term.Desc
	if desc == "" {
		desc = domain.SearchTermDesc
	}
	return []string{"Date", ks.Keyword, desc}
}
