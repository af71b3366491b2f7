package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"trendscli/internal/config"
	"trendscli/internal/entity"
	runErrors "trendscli/internal/errors"
	"trendscli/internal/exporter"
	"trendscli/internal/fetch"
	"trendscli/internal/infrastructure"
	"trendscli/internal/pipeline"
	"trendscli/internal/planner"
	"trendscli/internal/security"
	"trendscli/internal/series"
	"trendscli/internal/services"
	"trendscli/internal/session"
	"trendscli/internal/throttle"
	"trendscli/pkg/contracts"
)

// Quota exhaustion gets its own exit code so wrapper scripts can tell
// "retry tomorrow" from "fix the invocation".
const (
	exitOK    = 0
	exitError = 1
	exitQuota = 2
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "auth" {
		os.Exit(runAuth(os.Args[2:]))
	}
	os.Exit(run())
}

// job is one keyword submission. Anchor-file rows carry their own
// anchor month and output name; plain keywords share the global flags.
type job struct {
	keyword    string
	outputName string
	mode       planner.Mode
	start      time.Time
	end        time.Time
	anchor     time.Time
}

func run() int {
	// Declare logger early so the panic handler can use it once
	// initialization gets far enough.
	var logger *slog.Logger
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("PANIC RECOVERED: %v\n", r)
			fmt.Printf("Stack trace:\n%s\n", debug.Stack())
			if logger != nil {
				logger.Error("trends panicked",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
			os.Exit(exitError)
		}
	}()

	keywordsFlag := flag.String("keywords", "", "comma-separated keywords to collect")
	keywordFile := flag.String("keyword-file", "", "file with one keyword per line (# comments allowed)")
	anchorFile := flag.String("anchor-file", "", "file with id|keyword|YYYY-MM rows, one anchored run per row")
	modeFlag := flag.String("mode", "", "scheduling mode: single | quarters | years | anchored")
	startFlag := flag.String("start", "", "span start (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "span end (YYYY-MM-DD), single mode only")
	anchorFlag := flag.String("anchor", "", "anchor month (YYYY-MM), anchored mode only")
	categoryFlag := flag.String("category", "", "service category filter")
	outputFlag := flag.String("output", "", "output directory (defaults to <data dir>/output)")
	usernameFlag := flag.String("username", "", "service username (bypasses the sealed credentials file)")
	passwordFlag := flag.String("password", "", "service password")
	throttleFlag := flag.String("throttle", "", "request pacing: fixed | jitter")
	delayFlag := flag.Duration("delay", 0, "pacing delay between windows, e.g. 2s")
	parallelFlag := flag.Int("parallel", 0, "keyword runs to execute concurrently (max 16)")
	noResolve := flag.Bool("no-resolve", false, "query raw keyword text, skip entity resolution")
	quietIO := flag.Bool("quiet-io", false, "omit resolution metadata from CSV headers")
	skipExisting := flag.Bool("skip-existing", false, "skip keywords whose output file already exists")
	keepRaw := flag.Bool("keep-raw", false, "keep per-window raw exports under raw/")
	xlsxFlag := flag.Bool("xlsx", false, "also write an XLSX workbook per keyword")
	zeroFill := flag.Bool("degraded-zero-fill", false, "write zero rows instead of failing when a window comes back malformed")
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
		cfg.Logging.FilePath = paths.GetLogPath("trends.log")
	}

	// Explicit flags win over file and environment values.
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if explicit["mode"] {
		cfg.Run.Mode = *modeFlag
	}
	if explicit["category"] {
		cfg.Service.Category = *categoryFlag
	}
	if explicit["output"] {
		cfg.Run.OutputDir = *outputFlag
	}
	if explicit["username"] {
		cfg.Auth.Username = *usernameFlag
	}
	if explicit["password"] {
		cfg.Auth.Password = *passwordFlag
	}
	if explicit["throttle"] {
		cfg.Throttle.Mode = *throttleFlag
	}
	if explicit["delay"] {
		cfg.Throttle.Delay = *delayFlag
	}
	if explicit["parallel"] {
		cfg.Run.Parallel = *parallelFlag
	}
	if explicit["no-resolve"] {
		cfg.Run.NoResolve = *noResolve
	}
	if explicit["quiet-io"] {
		cfg.Run.QuietIO = *quietIO
	}
	if explicit["skip-existing"] {
		cfg.Run.SkipExisting = *skipExisting
	}
	if explicit["keep-raw"] {
		cfg.Run.KeepRaw = *keepRaw
	}
	if explicit["xlsx"] {
		cfg.Run.XLSX = *xlsxFlag
	}
	if explicit["degraded-zero-fill"] {
		cfg.Run.DegradedZeroFill = *zeroFill
	}
	if explicit["log-level"] {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: invalid configuration: %v\n", err)
		return exitError
	}

	if cfg.Run.OutputDir != "" && cfg.Run.OutputDir != config.DefaultOutputDir {
		paths.OutputDir = cfg.Run.OutputDir
		if !filepath.IsAbs(paths.OutputDir) {
			paths.OutputDir = filepath.Join(paths.DataDir, cfg.Run.OutputDir)
		}
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Printf("Error: failed to create data directories: %v\n", err)
		return exitError
	}
	cfg.Auth.CredentialsFile = credentialsPath(cfg, paths)

	// Keep CLI logs under the shared data dir next to the daemon's.
	if !filepath.IsAbs(cfg.Logging.FilePath) {
		cfg.Logging.FilePath = filepath.Join(paths.DataDir, cfg.Logging.FilePath)
	}
	logger, err = infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Warning: failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}

	jobs, err := collectJobs(cfg, *keywordsFlag, *keywordFile, *anchorFile, *startFlag, *endFlag, *anchorFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return exitError
	}
	if len(jobs) == 0 {
		fmt.Println("Error: no keywords given (use --keywords, --keyword-file or --anchor-file)")
		return exitError
	}

	var creds session.Credentials
	if explicit["username"] || explicit["password"] {
		if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
			fmt.Println("Error: --username and --password must be given together")
			return exitError
		}
		creds = session.Credentials{Username: cfg.Auth.Username, Password: cfg.Auth.Password}
	} else {
		creds, err = services.ResolveCredentials(cfg)
		if errors.Is(err, runErrors.ErrCredentialsMissing) {
			fmt.Println("Error: no credentials configured; run \"trends auth init\" or pass --username/--password")
			return exitError
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return exitError
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := buildManager(cfg, paths, creds, newConsoleSink(os.Stdout), logger)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return exitError
	}
	defer manager.Stop()

	exp := exporter.NewSeriesExporter(paths, logger, exporter.Options{
		QuietIO:      cfg.Run.QuietIO,
		SkipExisting: cfg.Run.SkipExisting,
	})

	logger.Info("batch starting",
		slog.Int("keywords", len(jobs)),
		slog.Int("parallel", cfg.Run.Parallel),
		slog.String("output_dir", paths.OutputDir))

	var (
		mu       sync.Mutex
		done     int
		skipped  int
		failed   []string
		quotaHit bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Run.Parallel)
	for _, jb := range jobs {
		g.Go(func() error {
			name := jb.outputName
			if name == "" {
				name = jb.keyword
			}
			if exp.ShouldSkip(name) {
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}

			_, err := manager.Execute(gctx, pipeline.RunRequest{
				Keywords: []string{jb.keyword},
				Mode:     jb.mode,
				Start:    jb.start,
				End:      jb.end,
				Anchor:   jb.anchor,
				Options: pipeline.RunOptions{
					Category:         cfg.Service.Category,
					OutputName:       jb.outputName,
					NoResolve:        cfg.Run.NoResolve,
					QuietIO:          cfg.Run.QuietIO,
					KeepRaw:          cfg.Run.KeepRaw,
					XLSX:             cfg.Run.XLSX,
					DegradedZeroFill: cfg.Run.DegradedZeroFill,
				},
			})
			switch {
			case err == nil:
				mu.Lock()
				done++
				mu.Unlock()
				return nil
			case errors.Is(err, fetch.ErrQuotaExhausted):
				// The quota is account-wide; cancel the siblings too.
				mu.Lock()
				quotaHit = true
				failed = append(failed, jb.keyword)
				mu.Unlock()
				return err
			case errors.Is(err, context.Canceled):
				return nil
			default:
				mu.Lock()
				failed = append(failed, jb.keyword)
				mu.Unlock()
				logger.Error("keyword failed",
					slog.String("keyword", jb.keyword),
					slog.String("error", err.Error()))
				return nil
			}
		})
	}
	_ = g.Wait()

	fmt.Printf("\n%d keyword(s): %d completed, %d skipped, %d failed\n",
		len(jobs), done, skipped, len(failed))
	for _, kw := range failed {
		fmt.Printf("  failed: %s\n", kw)
	}

	switch {
	case quotaHit:
		fmt.Printf("Error: upstream quota exhausted; partial results kept in %s\n", paths.OutputDir)
		return exitQuota
	case ctx.Err() != nil:
		fmt.Printf("Interrupted; partial results kept in %s\n", paths.OutputDir)
		return exitError
	case len(failed) > 0:
		return exitError
	}
	fmt.Printf("Output written to %s\n", paths.OutputDir)
	return exitOK
}

// collectJobs merges the three keyword sources into the submission
// list. Plain keywords are deduplicated and share the global mode and
// span; anchor-file rows are always anchored runs named after their id.
func collectJobs(cfg *config.Config, keywordsCSV, keywordFile, anchorFile, startStr, endStr, anchorStr string) ([]job, error) {
	var keywords []string
	seen := map[string]bool{}
	add := func(kw string) {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			return
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}
	for _, kw := range strings.Split(keywordsCSV, ",") {
		add(kw)
	}
	if keywordFile != "" {
		lines, err := readLines(keywordFile)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			add(line)
		}
	}

	var jobs []job
	if len(keywords) > 0 {
		mode, err := planner.ParseMode(cfg.Run.Mode)
		if err != nil {
			return nil, err
		}
		start, end, anchor, err := parseSpan(mode, startStr, endStr, anchorStr)
		if err != nil {
			return nil, err
		}
		for _, kw := range keywords {
			jobs = append(jobs, job{keyword: kw, mode: mode, start: start, end: end, anchor: anchor})
		}
	}

	if anchorFile != "" {
		anchored, err := readAnchorJobs(anchorFile)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, anchored...)
	}
	return jobs, nil
}

// parseSpan parses the global date flags and checks the mode has the
// dates it needs, so bad invocations fail before any login happens.
func parseSpan(mode planner.Mode, startStr, endStr, anchorStr string) (start, end, anchor time.Time, err error) {
	if startStr != "" {
		start, err = time.Parse(dateLayout, startStr)
		if err != nil {
			return start, end, anchor, fmt.Errorf("invalid --start %q (want YYYY-MM-DD)", startStr)
		}
	}
	if endStr != "" {
		end, err = time.Parse(dateLayout, endStr)
		if err != nil {
			return start, end, anchor, fmt.Errorf("invalid --end %q (want YYYY-MM-DD)", endStr)
		}
	}
	if anchorStr != "" {
		anchor, err = time.Parse(monthLayout, anchorStr)
		if err != nil {
			return start, end, anchor, fmt.Errorf("invalid --anchor %q (want YYYY-MM)", anchorStr)
		}
	}

	switch mode {
	case planner.ModeSingle:
		if start.IsZero() || end.IsZero() {
			return start, end, anchor, fmt.Errorf("mode single needs --start and --end")
		}
	case planner.ModeQuarters, planner.ModeYears:
		if start.IsZero() {
			return start, end, anchor, fmt.Errorf("mode %s needs --start", mode)
		}
	case planner.ModeAnchored:
		if anchor.IsZero() {
			return start, end, anchor, fmt.Errorf("mode anchored needs --anchor (YYYY-MM)")
		}
	}
	return start, end, anchor, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// readAnchorJobs parses id|keyword|YYYY-MM rows. Blank lines and #
// comments are skipped; anything else malformed aborts the batch with
// the offending line number.
func readAnchorJobs(path string) ([]job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var jobs []job
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s:%d: malformed row %q (want id|keyword|YYYY-MM)", path, lineNo, line)
		}
		id := strings.TrimSpace(fields[0])
		keyword := strings.TrimSpace(fields[1])
		monthStr := strings.TrimSpace(fields[2])
		if id == "" || keyword == "" {
			return nil, fmt.Errorf("%s:%d: malformed row %q (want id|keyword|YYYY-MM)", path, lineNo, line)
		}
		month, err := time.Parse(monthLayout, monthStr)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid anchor month %q (want YYYY-MM)", path, lineNo, monthStr)
		}
		jobs = append(jobs, job{keyword: keyword, outputName: id, mode: planner.ModeAnchored, anchor: month})
	}
	return jobs, scanner.Err()
}

// buildManager mirrors the daemon's pipeline wiring with console events
// and pre-resolved credentials instead of the lazy service provider.
func buildManager(cfg *config.Config, paths *config.Paths, creds session.Credentials, sink pipeline.EventSink, logger *slog.Logger) (*pipeline.Manager, error) {
	registry := pipeline.NewRegistry()
	manager := pipeline.NewManager(sink, registry, nil, nil, logger)

	deps := pipeline.StepDeps{
		Provider: session.NewFormProvider(creds, session.Config{
			LoginURL:  cfg.Service.LoginURL,
			AuthURL:   cfg.Service.AuthURL,
			Timeout:   cfg.Fetch.Timeout,
			UserAgent: cfg.Fetch.UserAgent,
		}, logger),
		Resolver: func(sess *session.Session) entity.Resolver {
			return entity.NewHTTPResolver(sess, entity.Config{
				URLTemplate: cfg.Service.EntityURL,
				UserAgent:   cfg.Fetch.UserAgent,
			}, logger)
		},
		Planner: planner.New(nil),
		FetchConfig: fetch.Config{
			URLTemplate: cfg.Service.TrendsURL,
			UserAgent:   cfg.Fetch.UserAgent,
		},
		Throttle: throttle.Spec{
			Mode:  throttle.Mode(cfg.Throttle.Mode),
			Delay: cfg.Throttle.Delay,
		},
		Paths:       paths,
		Reconciler:  series.NewReconciler(logger),
		Broadcaster: manager.GetBroadcaster(),
		Logger:      logger,
	}
	for _, step := range pipeline.StandardSteps(deps) {
		if err := registry.Register(step); err != nil {
			return nil, fmt.Errorf("register step %s: %w", step.ID(), err)
		}
	}
	return manager, nil
}

// consoleSink prints run events for interactive use.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

// Publish implements pipeline.EventSink. Progress lines only print
// when the step reported a message, which keeps parallel batches
// readable.
func (s *consoleSink) Publish(eventType string, payload interface{}) {
	snap, ok := payload.(*pipeline.RunSnapshot)
	if !ok {
		return
	}
	name := snap.RunID
	if len(snap.Keywords) > 0 {
		name = snap.Keywords[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch eventType {
	case pipeline.EventRunProgress:
		if snap.Message != "" {
			fmt.Fprintf(s.out, "[%s] %3d%% %s\n", name, snap.Progress, snap.Message)
		}
	case pipeline.EventRunComplete:
		fmt.Fprintf(s.out, "[%s] completed\n", name)
	case pipeline.EventRunError:
		fmt.Fprintf(s.out, "[%s] failed: %s\n", name, snap.Error)
	}
}

// credentialsPath resolves the sealed credentials file against the data
// dir, so "trends auth init" and batch runs agree on the location.
func credentialsPath(cfg *config.Config, paths *config.Paths) string {
	p := cfg.Auth.CredentialsFile
	switch {
	case p == "":
		return paths.CredentialsFile
	case filepath.IsAbs(p):
		return p
	default:
		return filepath.Join(paths.DataDir, p)
	}
}

// runAuth handles the auth subcommand. "trends auth init" seals the
// service account into the credentials file so batch runs and the
// daemon never need plaintext secrets in config or environment.
func runAuth(args []string) int {
	if len(args) == 0 || args[0] != "init" {
		fmt.Println("Usage: trends auth init [--config PATH] [--username USER] [--password PASS]")
		return exitError
	}

	fs := flag.NewFlagSet("auth init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to trends.yaml (defaults to ./trends.yaml)")
	username := fs.String("username", "", "service username (prompted when omitted)")
	password := fs.String("password", "", "service password (prompted when omitted)")
	_ = fs.Parse(args[1:])

	paths, err := config.GetPaths()
	if err != nil {
		fmt.Printf("Error: failed to resolve data paths: %v\n", err)
		return exitError
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Warning: failed to load config, using defaults: %v\n", err)
		cfg = config.Default()
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Printf("Error: failed to create data directories: %v\n", err)
		return exitError
	}

	user := strings.TrimSpace(*username)
	pass := *password
	reader := bufio.NewReader(os.Stdin)
	if user == "" {
		fmt.Print("Username: ")
		line, _ := reader.ReadString('\n')
		user = strings.TrimSpace(line)
	}
	if pass == "" {
		fmt.Print("Password: ")
		line, _ := reader.ReadString('\n')
		pass = strings.TrimSpace(line)
	}
	if user == "" || pass == "" {
		fmt.Println("Error: username and password are required")
		return exitError
	}

	target := credentialsPath(cfg, paths)
	if err := security.SealCredentials(security.Credentials{Username: user, Password: pass}, target); err != nil {
		fmt.Printf("Error: failed to seal credentials: %v\n", err)
		return exitError
	}
	fmt.Printf("Credentials sealed to %s\n", target)
	return exitOK
}
