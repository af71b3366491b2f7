package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"trendscli/internal/config"
	"trendscli/internal/exporter"
	"trendscli/internal/infrastructure"
	"trendscli/internal/series"
	"trendscli/pkg/contracts"
	"trendscli/pkg/contracts/domain"
)

const (
	exitOK    = 0
	exitError = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	rawFlag := flag.String("raw", "", "raw exports root (defaults to <data dir>/raw)")
	outputFlag := flag.String("output", "", "output directory (defaults to <data dir>/output)")
	keywordsFlag := flag.String("keywords", "", "comma-separated subset to re-merge, as named under the raw directory (defaults to every raw keyword)")
	xlsxFlag := flag.Bool("xlsx", false, "also write a combined XLSX workbook")
	configPath := flag.String("config", "", "path to trends.yaml (defaults to ./trends.yaml)")
	logLevel := flag.String("log-level", "", "log level: debug | info | warn | error")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return exitOK
	}

	paths, err := config.GetPaths()
	if err != nil {
		fmt.Printf("Error: failed to resolve data paths: %v\n", err)
		return exitError
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Warning: failed to load config, using defaults: %v\n", err)
		cfg = config.Default()
		cfg.Logging.FilePath = paths.GetLogPath("trendsmerge.log")
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if !filepath.IsAbs(cfg.Logging.FilePath) {
		cfg.Logging.FilePath = filepath.Join(paths.DataDir, cfg.Logging.FilePath)
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Warning: failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}

	rawRoot := *rawFlag
	if rawRoot == "" {
		rawRoot = paths.RawDir
	}
	if *outputFlag != "" {
		paths.OutputDir = *outputFlag
	}
	if err := os.MkdirAll(paths.OutputDir, 0o755); err != nil {
		fmt.Printf("Error: failed to create output directory: %v\n", err)
		return exitError
	}

	var keywords []string
	if *keywordsFlag != "" {
		for _, kw := range strings.Split(*keywordsFlag, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
	} else {
		keywords, err = exporter.RawKeywords(rawRoot)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return exitError
		}
	}
	if len(keywords) == 0 {
		fmt.Printf("Error: no raw exports under %s (fetch with trends --keep-raw first)\n", rawRoot)
		return exitError
	}

	// Raw exports carry no resolution metadata, so headers stay quiet.
	exp := exporter.NewSeriesExporter(paths, logger, exporter.Options{QuietIO: true})
	rec := series.NewReconciler(logger)

	logger.Info("offline merge starting",
		slog.Int("keywords", len(keywords)),
		slog.String("raw_root", rawRoot),
		slog.String("output_dir", paths.OutputDir))

	merged := make([]exporter.KeywordSeries, 0, len(keywords))
	var failed []string
	for _, kw := range keywords {
		ks, err := mergeKeyword(rawRoot, kw, rec)
		if err == nil {
			err = exp.ExportMerged(ks)
		}
		if err != nil {
			fmt.Printf("  %s: %v\n", kw, err)
			logger.Error("keyword merge failed",
				slog.String("keyword", kw),
				slog.String("error", err.Error()))
			failed = append(failed, kw)
			continue
		}
		fmt.Printf("  %s: %d points\n", kw, len(ks.Merged.Points))
		merged = append(merged, ks)
	}

	if *xlsxFlag && len(merged) > 0 {
		path := exp.WorkbookPath("trends")
		if err := exp.ExportWorkbook(path, merged); err != nil {
			fmt.Printf("Error: failed to write workbook: %v\n", err)
			return exitError
		}
		fmt.Printf("Workbook written to %s\n", path)
	}

	fmt.Printf("\n%d keyword(s): %d merged, %d failed\n", len(keywords), len(merged), len(failed))
	if len(failed) > 0 {
		return exitError
	}
	fmt.Printf("Output written to %s\n", paths.OutputDir)
	return exitOK
}

// mergeKeyword reloads one keyword's persisted windows and reconciles
// them the same way a live run would have.
func mergeKeyword(rawRoot, keyword string, rec *series.Reconciler) (exporter.KeywordSeries, error) {
	batch, err := exporter.LoadRawKeyword(rawRoot, keyword)
	if err != nil {
		return exporter.KeywordSeries{}, err
	}
	if len(batch.Windows) == 0 {
		return exporter.KeywordSeries{}, fmt.Errorf("no raw windows under %s", filepath.Join(rawRoot, keyword))
	}
	points, err := rec.Merge(series.Batch{Anchor: batch.Anchor, Windows: batch.Windows})
	if err != nil {
		return exporter.KeywordSeries{}, err
	}
	return exporter.KeywordSeries{
		Keyword: keyword,
		Merged:  domain.MergedSeries{Term: domain.NewSearchTerm(keyword), Points: points},
	}, nil
}
