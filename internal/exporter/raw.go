package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"trendscli/internal/config"
	"trendscli/internal/errors"
	"trendscli/pkg/contracts/domain"
)

// Raw exports let reconciliation be re-run offline: one CSV per
// fetched window under raw/<keyword>/<start>_<end>.csv, with the
// anchor window prefixed "anchor_". The window bounds live in the file
// name; the rows are the parsed points.

const (
	rawDateLayout   = "2006-01-02"
	rawAnchorPrefix = "anchor_"
)

// RawWriter persists parsed window series as they are fetched.
type RawWriter struct {
	csvWriter *CSVWriter
	paths     *config.Paths
}

// NewRawWriter creates a raw export writer rooted at the configured
// raw directory.
func NewRawWriter(paths *config.Paths) *RawWriter {
	return &RawWriter{csvWriter: NewCSVWriter(paths), paths: paths}
}

// WriteWindow persists one window's parsed series for keyword.
func (w *RawWriter) WriteWindow(keyword string, sub domain.SubSeries) error {
	return w.write(keyword, rawFileName("", sub.Window), sub.Points)
}

// WriteAnchor persists the anchor series for keyword.
func (w *RawWriter) WriteAnchor(keyword string, anchor domain.AnchorSeries) error {
	return w.write(keyword, rawFileName(rawAnchorPrefix, anchor.Window), anchor.Points)
}

func (w *RawWriter) write(keyword, name string, points []domain.SeriesPoint) error {
	records := make([][]string, 0, len(points))
	for _, p := range points {
		records = append(records, []string{p.Date.Format(rawDateLayout), formatRawValue(p.Value)})
	}

	path := filepath.Join(w.paths.RawKeywordDir(sanitizeFilename(keyword)), name)
	if err := w.csvWriter.WriteSimpleCSV(path, []string{"Date", "Value"}, records); err != nil {
		return errors.NewStorageError(fmt.Sprintf("write raw export %s for %q", name, keyword), err)
	}
	return nil
}

func rawFileName(prefix string, window domain.DateWindow) string {
	return fmt.Sprintf("%s%s_%s.csv", prefix,
		window.Start.Format(rawDateLayout), window.End.Format(rawDateLayout))
}

// RawBatch is one keyword's reloaded raw exports, ready to reconcile.
type RawBatch struct {
	Keyword string
	Anchor  domain.AnchorSeries
	Windows []domain.SubSeries
}

// RawKeywords lists the keyword directories under root in sorted
// order.
func RawKeywords(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("read raw directory %s", root), err)
	}

	var keywords []string
	for _, entry := range entries {
		if entry.IsDir() {
			keywords = append(keywords, entry.Name())
		}
	}
	sort.Strings(keywords)
	return keywords, nil
}

// LoadRawKeyword reloads one keyword's persisted windows and anchor.
// Windows come back sorted by start date, the order they were queried
// in.
func LoadRawKeyword(root, keyword string) (*RawBatch, error) {
	dir := filepath.Join(root, keyword)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("read raw directory for %q", keyword), err)
	}

	batch := &RawBatch{Keyword: keyword}
	haveAnchor := false
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}

		window, isAnchor, err := parseRawFileName(name)
		if err != nil {
			return nil, errors.NewParsingError(fmt.Sprintf("raw export %s for %q", name, keyword), err)
		}
		points, err := readRawPoints(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.NewParsingError(fmt.Sprintf("raw export %s for %q", name, keyword), err)
		}

		if isAnchor {
			if haveAnchor {
				return nil, errors.NewAppValidationError(fmt.Sprintf("multiple anchor exports for %q", keyword))
			}
			batch.Anchor = domain.AnchorSeries{Window: window, Points: points}
			haveAnchor = true
			continue
		}
		batch.Windows = append(batch.Windows, domain.SubSeries{Window: window, Points: points})
	}

	sort.Slice(batch.Windows, func(i, j int) bool {
		return batch.Windows[i].Window.Start.Before(batch.Windows[j].Window.Start)
	})
	return batch, nil
}

// parseRawFileName recovers the window from "<start>_<end>.csv",
// anchor-prefixed or not.
func parseRawFileName(name string) (domain.DateWindow, bool, error) {
	stem := strings.TrimSuffix(name, ".csv")
	isAnchor := strings.HasPrefix(stem, rawAnchorPrefix)
	stem = strings.TrimPrefix(stem, rawAnchorPrefix)

	parts := strings.Split(stem, "_")
	if len(parts) != 2 {
		return domain.DateWindow{}, false, fmt.Errorf("file name %q does not carry a window", name)
	}
	start, err := time.Parse(rawDateLayout, parts[0])
	if err != nil {
		return domain.DateWindow{}, false, fmt.Errorf("bad window start in %q: %w", name, err)
	}
	end, err := time.Parse(rawDateLayout, parts[1])
	if err != nil {
		return domain.DateWindow{}, false, fmt.Errorf("bad window end in %q: %w", name, err)
	}
	window, err := domain.NewDateWindow(start, end)
	if err != nil {
		return domain.DateWindow{}, false, err
	}
	return window, isAnchor, nil
}

// readRawPoints reads the Date,Value rows of one raw export.
func readRawPoints(path string) ([]domain.SeriesPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2

	var points []domain.SeriesPoint
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if record[0] == "Date" {
				continue
			}
		}
		date, err := time.Parse(rawDateLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("bad date %q: %w", record[0], err)
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", record[1], err)
		}
		points = append(points, domain.SeriesPoint{Date: date, Value: value})
	}
	return points, nil
}
