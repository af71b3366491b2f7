package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trendscli/internal/aggregate"
	"trendscli/internal/config"
	"trendscli/internal/entity"
	"trendscli/internal/exporter"
	"trendscli/internal/fetch"
	"trendscli/internal/infrastructure"
	"trendscli/internal/planner"
	"trendscli/internal/series"
	"trendscli/internal/session"
	"trendscli/internal/throttle"
	"trendscli/pkg/contracts/domain"
)

// ResolverFactory builds a resolver bound to the run's session. The
// session only exists once the authenticate step has run, so resolvers
// cannot be constructed up front.
type ResolverFactory func(*session.Session) entity.Resolver

// StepDeps bundles the collaborators the standard steps share.
// Broadcaster and Metrics are optional.
type StepDeps struct {
	Provider    session.Provider
	Resolver    ResolverFactory
	Planner     *planner.Planner
	FetchConfig fetch.Config
	Throttle    throttle.Spec
	Paths       *config.Paths
	Reconciler  *series.Reconciler
	Broadcaster *StatusBroadcaster
	Metrics     *infrastructure.BusinessMetrics
	Logger      *slog.Logger
}

// StandardSteps returns the canonical pipeline in execution order:
// authenticate, resolve, plan, fetch, reconcile, export.
func StandardSteps(deps StepDeps) []Step {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var raw *exporter.RawWriter
	if deps.Paths != nil {
		raw = exporter.NewRawWriter(deps.Paths)
	}
	return []Step{
		NewAuthStep(deps.Provider, logger),
		NewResolveStep(deps.Resolver, logger),
		NewPlanStep(deps.Planner, logger),
		NewFetchStep(deps.FetchConfig, deps.Throttle, raw, deps.Broadcaster, deps.Metrics, logger),
		NewReconcileStep(deps.Reconciler, deps.Metrics, logger),
		NewExportStep(deps.Paths, deps.Metrics, logger),
	}
}

// AuthStep logs in against the remote service and stores the session
// for the steps that follow.
type AuthStep struct {
	BaseStep
	provider session.Provider
	logger   *slog.Logger
}

func NewAuthStep(provider session.Provider, logger *slog.Logger) *AuthStep {
	return &AuthStep{
		BaseStep: NewBaseStep(StepIDAuth, StepNameAuth),
		provider: provider,
		logger:   logger,
	}
}

func (s *AuthStep) Validate(_ *RunState) error {
	if s.provider == nil {
		return fmt.Errorf("no session provider configured")
	}
	return nil
}

func (s *AuthStep) Execute(ctx context.Context, state *RunState) error {
	sess, err := s.provider.Authenticate(ctx)
	if err != nil {
		// rejected credentials will keep being rejected; only
		// transport failures are worth another attempt
		return NewAuthError(s.ID(), err, !errors.Is(err, session.ErrAuthFailed))
	}
	state.SetContext(ContextKeySession, sess)
	s.logger.Info("session established", "run_id", state.ID, "domain", sess.Domain)
	return nil
}

// ResolveStep turns raw keywords into query terms, preferring canonical
// entities over free-text search terms.
type ResolveStep struct {
	BaseStep
	factory ResolverFactory
	logger  *slog.Logger
}

func NewResolveStep(factory ResolverFactory, logger *slog.Logger) *ResolveStep {
	return &ResolveStep{
		BaseStep: NewBaseStep(StepIDResolve, StepNameResolve),
		factory:  factory,
		logger:   logger,
	}
}

func (s *ResolveStep) Validate(state *RunState) error {
	opts := optionsFromState(state)
	if !opts.NoResolve && s.factory == nil {
		return fmt.Errorf("no resolver configured and resolution not disabled")
	}
	return nil
}

func (s *ResolveStep) Execute(ctx context.Context, state *RunState) error {
	keywords, err := keywordsFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	opts := optionsFromState(state)

	var resolver entity.Resolver = entity.StaticResolver{}
	if !opts.NoResolve {
		sess, err := sessionFromState(state)
		if err != nil {
			return NewValidationError(s.ID(), err.Error())
		}
		resolver = s.factory(sess)
	}

	terms := make([]domain.QueryTerm, 0, len(keywords))
	entities := 0
	for _, kw := range keywords {
		resolved, err := resolver.Resolve(ctx, kw)
		if err != nil {
			return WrapError(err, s.ID(), fmt.Sprintf("resolving keyword %q", kw))
		}
		if len(resolved) == 0 {
			return NewValidationError(s.ID(), fmt.Sprintf("keyword %q resolved to nothing", kw))
		}
		term := resolved[0]
		if term.IsEntity() {
			entities++
		}
		terms = append(terms, term)
	}

	state.SetContext(ContextKeyTerms, terms)
	s.logger.Info("keywords resolved",
		"run_id", state.ID,
		"keywords", len(keywords),
		"entities", entities)
	return nil
}

// PlanStep computes the window set for the requested span and mode.
type PlanStep struct {
	BaseStep
	planner *planner.Planner
	logger  *slog.Logger
}

func NewPlanStep(p *planner.Planner, logger *slog.Logger) *PlanStep {
	return &PlanStep{
		BaseStep: NewBaseStep(StepIDPlan, StepNamePlan),
		planner:  p,
		logger:   logger,
	}
}

func (s *PlanStep) Validate(_ *RunState) error {
	if s.planner == nil {
		return fmt.Errorf("no planner configured")
	}
	return nil
}

func (s *PlanStep) Execute(_ context.Context, state *RunState) error {
	mode, err := modeFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}

	plan, err := s.planner.Plan(planner.Request{
		Mode:   mode,
		Start:  timeFromState(state, ConfigKeyStart),
		End:    timeFromState(state, ConfigKeyEnd),
		Anchor: timeFromState(state, ConfigKeyAnchor),
	})
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}

	state.SetContext(ContextKeyPlan, plan)
	s.logger.Info("windows planned",
		"run_id", state.ID,
		"mode", string(plan.Mode),
		"windows", len(plan.Windows),
		"anchor", plan.Anchor.String())
	return nil
}

// FetchStep queries every planned window in order, then the anchor
// window, accumulating each term's sub-series. One quota trip aborts
// the run; partial raw output is persisted first when keep-raw is on.
type FetchStep struct {
	BaseStep
	cfg         fetch.Config
	throttle    throttle.Spec
	raw         *exporter.RawWriter
	broadcaster *StatusBroadcaster
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger
}

func NewFetchStep(cfg fetch.Config, spec throttle.Spec, raw *exporter.RawWriter, broadcaster *StatusBroadcaster, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *FetchStep {
	return &FetchStep{
		BaseStep:    NewBaseStep(StepIDFetch, StepNameFetch),
		cfg:         cfg,
		throttle:    spec,
		raw:         raw,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
	}
}

func (s *FetchStep) Validate(state *RunState) error {
	if _, err := sessionFromState(state); err != nil {
		return err
	}
	if _, err := termsFromState(state); err != nil {
		return err
	}
	if _, err := planFromState(state); err != nil {
		return err
	}
	return nil
}

// fetchRun carries the per-run collaborators through the fetch loop.
type fetchRun struct {
	state  *RunState
	quota  *domain.QuotaState
	exec   *fetch.Executor
	acc    *aggregate.Accumulator
	terms  []domain.QueryTerm
	names  []string
	opts   RunOptions
	single bool
}

func (s *FetchStep) Execute(ctx context.Context, state *RunState) error {
	sess, err := sessionFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	terms, err := termsFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	plan, err := planFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	keywords, err := keywordsFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	opts := optionsFromState(state)

	limiter, err := throttle.New(s.throttle)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}

	quota := &domain.QuotaState{}
	run := &fetchRun{
		state:  state,
		quota:  quota,
		exec:   fetch.NewExecutor(sess, limiter, quota, s.cfg, s.logger),
		acc:    aggregate.NewAccumulator(terms),
		terms:  terms,
		names:  exportNames(keywords, opts),
		opts:   opts,
		single: plan.SelfAnchored(),
	}

	total := len(plan.Windows)
	if !plan.SelfAnchored() {
		total++
	}
	tracker := NewProgressTracker(total)

	var lastTable *series.Table
	for _, window := range plan.Windows {
		table, err := s.fetchWindow(ctx, run, window)
		if err != nil {
			return err
		}
		if degradedFromState(state) {
			// the single span came back malformed and the zero
			// fallback takes over; nothing left to fetch
			return nil
		}
		if table != nil {
			lastTable = table
		}
		tracker.Increment(fmt.Sprintf("window %s fetched", window))
		s.reportProgress(state.ID, tracker)
	}

	if plan.SelfAnchored() {
		// the lone window doubles as its own anchor; a no-data window
		// leaves the anchor empty and reconciliation degrades
		if lastTable == nil {
			lastTable = &series.Table{}
		}
		if err := run.acc.SetAnchor(plan.Windows[0], lastTable); err != nil {
			return NewParseError(s.ID(), err)
		}
	} else {
		if err := s.fetchAnchor(ctx, run, plan.Anchor); err != nil {
			return err
		}
		tracker.Increment("anchor window fetched")
		s.reportProgress(state.ID, tracker)
	}

	if opts.KeepRaw {
		if err := s.persistRaw(run); err != nil {
			return WrapError(err, s.ID(), "raw window persistence failed")
		}
	}

	state.SetContext(ContextKeyBatches, run.acc.Batches())
	s.logger.Info("windows fetched",
		"run_id", state.ID,
		"windows", len(plan.Windows),
		"self_anchored", plan.SelfAnchored())
	return nil
}

func (s *FetchStep) fetchWindow(ctx context.Context, run *fetchRun, window domain.DateWindow) (*series.Table, error) {
	resp, err := run.exec.Execute(ctx, domain.NewQueryParameters(run.terms, window, run.opts.Category))
	if err != nil {
		if errors.Is(err, fetch.ErrQuotaExhausted) {
			return nil, s.abortOnQuota(run, window, err)
		}
		return nil, NewFetchError(s.ID(), err)
	}

	cls := fetch.Classify(resp)
	switch cls.Kind {
	case fetch.KindDataTable:
		table, perr := series.ParseReport(window, resp.Body)
		if perr != nil {
			return nil, NewParseError(s.ID(), perr)
		}
		if err := run.acc.Add(window, table); err != nil {
			return nil, NewParseError(s.ID(), err)
		}
		s.countWindow(ctx)
		return table, nil

	case fetch.KindNoData:
		run.acc.AddToAll(fetch.ZeroSample(window))
		s.countNoData(ctx)
		s.logger.Warn("window has no data, zero filled",
			"run_id", run.state.ID,
			"window", window.String())
		return nil, nil

	case fetch.KindQuotaExceeded:
		run.quota.Trip(window)
		s.countQuotaTrip(ctx)
		return nil, s.abortOnQuota(run, window, cls.Err)

	default:
		if run.opts.DegradedZeroFill && run.single {
			run.state.SetContext(ContextKeyDegraded, true)
			s.logger.Error("response format not recognized, substituting zero fallback range",
				"run_id", run.state.ID,
				"window", window.String(),
				"content_type", resp.ContentType,
				"error", cls.Err)
			return nil, nil
		}
		return nil, NewParseError(s.ID(), cls.Err)
	}
}

func (s *FetchStep) fetchAnchor(ctx context.Context, run *fetchRun, window domain.DateWindow) error {
	resp, err := run.exec.Execute(ctx, domain.NewQueryParameters(run.terms, window, run.opts.Category))
	if err != nil {
		if errors.Is(err, fetch.ErrQuotaExhausted) {
			return s.abortOnQuota(run, window, err)
		}
		return NewFetchError(s.ID(), err)
	}

	cls := fetch.Classify(resp)
	switch cls.Kind {
	case fetch.KindDataTable:
		table, perr := series.ParseReport(window, resp.Body)
		if perr != nil {
			return NewParseError(s.ID(), perr)
		}
		if err := run.acc.SetAnchor(window, table); err != nil {
			return NewParseError(s.ID(), err)
		}
		s.countWindow(ctx)
		return nil

	case fetch.KindNoData:
		// an empty anchor degrades reconciliation to concatenation
		// instead of failing everything already fetched
		if err := run.acc.SetAnchor(window, &series.Table{}); err != nil {
			return NewParseError(s.ID(), err)
		}
		s.countNoData(ctx)
		s.logger.Warn("anchor window has no data, reconciliation will degrade",
			"run_id", run.state.ID,
			"window", window.String())
		return nil

	case fetch.KindQuotaExceeded:
		run.quota.Trip(window)
		s.countQuotaTrip(ctx)
		return s.abortOnQuota(run, window, cls.Err)

	default:
		return NewParseError(s.ID(), cls.Err)
	}
}

// abortOnQuota persists whatever accumulated before the trip, then
// fails the run. Partial raw output survives so a later merge can pick
// up from it.
func (s *FetchStep) abortOnQuota(run *fetchRun, window domain.DateWindow, cause error) error {
	if run.opts.KeepRaw {
		if err := s.persistRaw(run); err != nil {
			s.logger.Warn("partial raw persistence failed",
				"run_id", run.state.ID,
				"error", err)
		}
	}
	s.logger.Error("query quota exhausted, aborting run",
		"run_id", run.state.ID,
		"window", window.String())
	return NewQuotaError(s.ID(), cause).WithContext("window", window.String())
}

// persistRaw writes every accumulated window and the anchor, one raw
// subdirectory per output name.
func (s *FetchStep) persistRaw(run *fetchRun) error {
	if s.raw == nil {
		return fmt.Errorf("raw writer not configured")
	}
	batches := run.acc.Batches()
	for k, name := range run.names {
		for _, sub := range run.acc.WindowsFor(k) {
			if err := s.raw.WriteWindow(name, sub); err != nil {
				return err
			}
		}
		if len(batches[k].Anchor.Points) > 0 {
			if err := s.raw.WriteAnchor(name, batches[k].Anchor); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *FetchStep) reportProgress(runID string, tracker *ProgressTracker) {
	if s.broadcaster == nil {
		return
	}
	message := tracker.Message()
	if !tracker.IsComplete() {
		message = fmt.Sprintf("%s, ETA %s", message, tracker.ETA())
	}
	s.broadcaster.UpdateStepProgress(runID, s.ID(), tracker.Progress(), message)
}

func (s *FetchStep) countWindow(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.WindowsFetched.Add(ctx, 1)
	}
}

func (s *FetchStep) countNoData(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.NoDataWindows.Add(ctx, 1)
	}
}

func (s *FetchStep) countQuotaTrip(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.QuotaTrips.Add(ctx, 1)
	}
}

// ReconcileStep merges each term's windows against its anchor into one
// continuous daily series.
type ReconcileStep struct {
	BaseStep
	reconciler *series.Reconciler
	metrics    *infrastructure.BusinessMetrics
	logger     *slog.Logger
}

func NewReconcileStep(reconciler *series.Reconciler, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *ReconcileStep {
	return &ReconcileStep{
		BaseStep:   NewBaseStep(StepIDReconcile, StepNameReconcile),
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger,
	}
}

func (s *ReconcileStep) Validate(state *RunState) error {
	if s.reconciler == nil {
		return fmt.Errorf("no reconciler configured")
	}
	if _, err := termsFromState(state); err != nil {
		return err
	}
	return nil
}

func (s *ReconcileStep) Execute(ctx context.Context, state *RunState) error {
	terms, err := termsFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	keywords, err := keywordsFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	opts := optionsFromState(state)
	names := exportNames(keywords, opts)

	if degradedFromState(state) {
		// the fetched span was malformed; the whole output is the
		// fixed yearly zero range, untouched by reconciliation
		merged := make([]exporter.KeywordSeries, len(terms))
		for k, term := range terms {
			merged[k] = exporter.KeywordSeries{
				Keyword: names[k],
				Merged:  domain.MergedSeries{Term: term, Points: domain.ZeroFallbackRange()},
			}
		}
		s.logger.Warn("emitting zero fallback range for degraded run",
			"run_id", state.ID,
			"terms", len(terms))
		state.SetContext(ContextKeyMerged, merged)
		return nil
	}

	batches, err := batchesFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	if len(batches) != len(terms) {
		return NewReconcileError(s.ID(), fmt.Errorf("%d batches for %d terms", len(batches), len(terms)))
	}

	start := time.Now()
	merged := make([]exporter.KeywordSeries, len(terms))
	for k, batch := range batches {
		points, err := s.reconciler.Merge(batch)
		if err != nil {
			return NewReconcileError(s.ID(), err).WithContext("keyword", names[k])
		}
		merged[k] = exporter.KeywordSeries{
			Keyword: names[k],
			Merged:  domain.MergedSeries{Term: terms[k], Points: points},
		}
	}
	if s.metrics != nil {
		s.metrics.ReconcileDuration.Record(ctx, time.Since(start).Seconds())
	}

	state.SetContext(ContextKeyMerged, merged)
	s.logger.Info("series reconciled",
		"run_id", state.ID,
		"terms", len(terms),
		"duration", time.Since(start))
	return nil
}

// ExportStep writes one merged CSV per keyword, plus a workbook when
// requested.
type ExportStep struct {
	BaseStep
	paths   *config.Paths
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

func NewExportStep(paths *config.Paths, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *ExportStep {
	return &ExportStep{
		BaseStep: NewBaseStep(StepIDExport, StepNameExport),
		paths:    paths,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *ExportStep) Validate(_ *RunState) error {
	if s.paths == nil {
		return fmt.Errorf("no output paths configured")
	}
	return nil
}

func (s *ExportStep) Execute(ctx context.Context, state *RunState) error {
	merged, err := mergedFromState(state)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	opts := optionsFromState(state)

	exp := exporter.NewSeriesExporter(s.paths, s.logger, exporter.Options{QuietIO: opts.QuietIO})

	rows := 0
	for _, ks := range merged {
		if err := exp.ExportMerged(ks); err != nil {
			return WrapError(err, s.ID(), fmt.Sprintf("exporting %q", ks.Keyword))
		}
		rows += len(ks.Merged.Points)
	}

	if opts.XLSX && len(merged) > 0 {
		name := opts.OutputName
		if name == "" {
			name = merged[0].Keyword
		}
		if err := exp.ExportWorkbook(exp.WorkbookPath(name), merged); err != nil {
			return WrapError(err, s.ID(), "exporting workbook")
		}
	}

	if s.metrics != nil {
		s.metrics.RowsExported.Add(ctx, int64(rows))
	}
	s.logger.Info("series exported",
		"run_id", state.ID,
		"files", len(merged),
		"rows", rows)
	return nil
}

// exportNames returns the output name for each keyword slot. A single
// keyword run with an explicit output name uses that name for both raw
// and merged output, so anchor-file batches keep their row IDs.
func exportNames(keywords []string, opts RunOptions) []string {
	if opts.OutputName != "" && len(keywords) == 1 {
		return []string{opts.OutputName}
	}
	return keywords
}

func keywordsFromState(state *RunState) ([]string, error) {
	v, ok := state.GetConfig(ConfigKeyKeywords)
	if !ok {
		return nil, fmt.Errorf("run config carries no keywords")
	}
	keywords, ok := v.([]string)
	if !ok || len(keywords) == 0 {
		return nil, fmt.Errorf("run config keywords are malformed")
	}
	return keywords, nil
}

func modeFromState(state *RunState) (planner.Mode, error) {
	v, ok := state.GetConfig(ConfigKeyMode)
	if !ok {
		return "", fmt.Errorf("run config carries no mode")
	}
	mode, ok := v.(planner.Mode)
	if !ok {
		return "", fmt.Errorf("run config mode is malformed")
	}
	return mode, nil
}

func timeFromState(state *RunState, key string) time.Time {
	if v, ok := state.GetConfig(key); ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

func optionsFromState(state *RunState) RunOptions {
	if v, ok := state.GetConfig(ConfigKeyOptions); ok {
		if opts, ok := v.(RunOptions); ok {
			return opts
		}
	}
	return RunOptions{}
}

func sessionFromState(state *RunState) (*session.Session, error) {
	v, ok := state.GetContext(ContextKeySession)
	if !ok {
		return nil, fmt.Errorf("no session in run state: authenticate step has not run")
	}
	sess, ok := v.(*session.Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("session in run state is malformed")
	}
	return sess, nil
}

func termsFromState(state *RunState) ([]domain.QueryTerm, error) {
	v, ok := state.GetContext(ContextKeyTerms)
	if !ok {
		return nil, fmt.Errorf("no terms in run state: resolve step has not run")
	}
	terms, ok := v.([]domain.QueryTerm)
	if !ok || len(terms) == 0 {
		return nil, fmt.Errorf("terms in run state are malformed")
	}
	return terms, nil
}

func planFromState(state *RunState) (*planner.Plan, error) {
	v, ok := state.GetContext(ContextKeyPlan)
	if !ok {
		return nil, fmt.Errorf("no plan in run state: plan step has not run")
	}
	plan, ok := v.(*planner.Plan)
	if !ok || plan == nil {
		return nil, fmt.Errorf("plan in run state is malformed")
	}
	return plan, nil
}

func batchesFromState(state *RunState) ([]series.Batch, error) {
	v, ok := state.GetContext(ContextKeyBatches)
	if !ok {
		return nil, fmt.Errorf("no batches in run state: fetch step has not run")
	}
	batches, ok := v.([]series.Batch)
	if !ok {
		return nil, fmt.Errorf("batches in run state are malformed")
	}
	return batches, nil
}

func mergedFromState(state *RunState) ([]exporter.KeywordSeries, error) {
	v, ok := state.GetContext(ContextKeyMerged)
	if !ok {
		return nil, fmt.Errorf("no merged series in run state: reconcile step has not run")
	}
	merged, ok := v.([]exporter.KeywordSeries)
	if !ok {
		return nil, fmt.Errorf("merged series in run state are malformed")
	}
	return merged, nil
}

func degradedFromState(state *RunState) bool {
	v, ok := state.GetContext(ContextKeyDegraded)
	if !ok {
		return false
	}
	degraded, ok := v.(bool)
	return ok && degraded
}
