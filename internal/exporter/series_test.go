package exporter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"trendscli/internal/errors"
	"trendscli/pkg/contracts/domain"
)

func point(y int, m time.Month, d int, v float64) domain.SeriesPoint {
	return domain.SeriesPoint{Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Value: v}
}

func TestSeriesExporter_ExportMerged(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		ks         KeywordSeries
		wantHeader string
	}{
		{
			name: "resolved entity header",
			ks: KeywordSeries{
				Keyword: "apple",
				Merged: domain.MergedSeries{
					Term: domain.QueryTerm{Topic: "/m/0k8z", Title: "Apple Inc.", Desc: "Company"},
					Points: []domain.SeriesPoint{
						point(2015, time.January, 4, 61),
						point(2015, time.January, 11, 13.4),
					},
				},
			},
			wantHeader: "Date,apple,Company,Apple Inc.",
		},
		{
			name: "search term header",
			ks: KeywordSeries{
				Keyword: "flux capacitors",
				Merged: domain.MergedSeries{
					Term:   domain.NewSearchTerm("flux capacitors"),
					Points: []domain.SeriesPoint{point(2015, time.January, 4, 61)},
				},
			},
			wantHeader: "Date,flux capacitors,Search term",
		},
		{
			name: "quiet header",
			opts: Options{QuietIO: true},
			ks: KeywordSeries{
				Keyword: "apple",
				Merged: domain.MergedSeries{
					Term:   domain.QueryTerm{Topic: "/m/0k8z", Title: "Apple Inc.", Desc: "Company"},
					Points: []domain.SeriesPoint{point(2015, time.January, 4, 61)},
				},
			},
			wantHeader: "Date,apple",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := testPaths(t)
			exp := NewSeriesExporter(paths, nil, tt.opts)

			require.NoError(t, exp.ExportMerged(tt.ks))

			content, err := os.ReadFile(exp.OutputPath(tt.ks.Keyword))
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(string(content)), "\n")
			require.NotEmpty(t, lines)
			assert.Equal(t, tt.wantHeader, lines[0])
			require.Len(t, lines, 1+len(tt.ks.Merged.Points))
		})
	}
}

func TestSeriesExporter_ExportMergedFormatsTwoDecimals(t *testing.T) {
	paths := testPaths(t)
	exp := NewSeriesExporter(paths, nil, Options{QuietIO: true})

	require.NoError(t, exp.ExportMerged(KeywordSeries{
		Keyword: "apple",
		Merged: domain.MergedSeries{
			Term: domain.NewSearchTerm("apple"),
			Points: []domain.SeriesPoint{
				point(2015, time.January, 4, 13.4),
				point(2015, time.January, 11, 0),
			},
		},
	}))

	content, err := os.ReadFile(exp.OutputPath("apple"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2015-01-04,13.40", lines[1])
	assert.Equal(t, "2015-01-11,0.00", lines[2])
}

func TestSeriesExporter_OutputPathSanitizes(t *testing.T) {
	paths := testPaths(t)
	exp := NewSeriesExporter(paths, nil, Options{})

	assert.Equal(t, filepath.Join(paths.OutputDir, "acme_inc.csv"),
		exp.OutputPath("acme/inc"))
	assert.Equal(t, filepath.Join(paths.OutputDir, "a_b_c.csv"),
		exp.OutputPath(`a\b:c`))
}

func TestSeriesExporter_ShouldSkip(t *testing.T) {
	paths := testPaths(t)
	ks := KeywordSeries{
		Keyword: "apple",
		Merged: domain.MergedSeries{
			Term:   domain.NewSearchTerm("apple"),
			Points: []domain.SeriesPoint{point(2015, time.January, 4, 61)},
		},
	}

	skipper := NewSeriesExporter(paths, nil, Options{SkipExisting: true})
	assert.False(t, skipper.ShouldSkip("apple"), "nothing written yet")

	require.NoError(t, skipper.ExportMerged(ks))
	assert.True(t, skipper.ShouldSkip("apple"))

	plain := NewSeriesExporter(paths, nil, Options{})
	assert.False(t, plain.ShouldSkip("apple"), "skip-existing not enabled")
}

func TestSeriesExporter_ExportMergedStorageError(t *testing.T) {
	paths := testPaths(t)
	// A file where the output directory should be makes MkdirAll fail.
	require.NoError(t, os.WriteFile(paths.OutputDir, []byte("x"), 0644))

	exp := NewSeriesExporter(paths, nil, Options{})
	err := exp.ExportMerged(KeywordSeries{
		Keyword: "apple",
		Merged:  domain.MergedSeries{Term: domain.NewSearchTerm("apple")},
	})
	require.Error(t, err)

	var ae *errors.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, errors.ErrTypeStorage, ae.Type)
}

func TestSeriesExporter_ExportWorkbook(t *testing.T) {
	paths := testPaths(t)
	exp := NewSeriesExporter(paths, nil, Options{})

	series := []KeywordSeries{
		{
			Keyword: "apple",
			Merged: domain.MergedSeries{
				Term: domain.NewSearchTerm("apple"),
				Points: []domain.SeriesPoint{
					point(2015, time.January, 4, 61),
					point(2015, time.January, 11, 75),
				},
			},
		},
		{
			Keyword: "pear",
			Merged: domain.MergedSeries{
				Term:   domain.NewSearchTerm("pear"),
				Points: []domain.SeriesPoint{point(2015, time.January, 4, 80)},
			},
		},
	}

	path := filepath.Join(paths.DataDir, "trends.xlsx")
	require.NoError(t, exp.ExportWorkbook(path, series))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"apple", "pear"}, f.GetSheetList())

	header, err := f.GetCellValue("apple", "B1")
	require.NoError(t, err)
	assert.Equal(t, "apple", header)

	date, err := f.GetCellValue("apple", "A2")
	require.NoError(t, err)
	assert.Equal(t, "2015-01-04", date)

	value, err := f.GetCellValue("pear", "B2")
	require.NoError(t, err)
	assert.Equal(t, "80", value)
}

func TestSeriesExporter_ExportWorkbookEmpty(t *testing.T) {
	paths := testPaths(t)
	exp := NewSeriesExporter(paths, nil, Options{})

	err := exp.ExportWorkbook(filepath.Join(paths.DataDir, "empty.xlsx"), nil)
	require.Error(t, err)

	var ae *errors.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, errors.ErrTypeValidation, ae.Type)
}

func TestSheetNames(t *testing.T) {
	long := strings.Repeat("k", 40)
	names := sheetNames([]KeywordSeries{
		{Keyword: "apple"},
		{Keyword: "apple"},
		{Keyword: "apple"},
		{Keyword: long},
	})

	assert.Equal(t, "apple", names[0])
	assert.Equal(t, "apple 2", names[1])
	assert.Equal(t, "apple 3", names[2])
	assert.Len(t, names[3], 31)
}
