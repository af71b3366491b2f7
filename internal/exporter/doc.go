// Package exporter writes reconciled interest series to disk.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing functionality with support for headers,
// appends, and an optional UTF-8 BOM for Excel compatibility.
//
// SeriesExporter: Writes one merged-series CSV per keyword into the
// output directory, plus an optional XLSX workbook with one sheet per
// keyword.
//
// RawWriter: Persists each fetched window's parsed series under the
// raw directory so reconciliation can be re-run offline without
// touching the network.
//
// Example usage:
//
//	exp := exporter.NewSeriesExporter(paths, logger, exporter.Options{})
//
//	err := exp.ExportMerged(exporter.KeywordSeries{
//		Keyword: "apple",
//		Merged:  merged,
//	})
package exporter
