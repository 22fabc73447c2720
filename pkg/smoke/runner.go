package smoke

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/integrail/uismoke/pkg/browser"
)

const (
	DefaultNavigationTimeout = 60 * time.Second
	DefaultCheckTimeout      = 10 * time.Second
	DefaultEvidenceDir       = "verification"
)

type Runner struct {
	driver   browser.Driver
	log      *zap.Logger
	reporter Reporter
	console  *Console
	metrics  *Metrics
	now      func() time.Time

	evidenceDir       string
	navigationTimeout time.Duration
	pollInterval      time.Duration
	checkTimeout      time.Duration
}

type Option func(r *Runner)

func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

func WithReporter(reporter Reporter) Option {
	return func(r *Runner) {
		r.reporter = reporter
	}
}

// WithConsole reports progress through the console and prefixes lines with
// the suite name when several suites run at once.
func WithConsole(c *Console) Option {
	return func(r *Runner) {
		r.console = c
		r.reporter = c
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithEvidenceDir(dir string) Option {
	return func(r *Runner) {
		r.evidenceDir = dir
	}
}

func WithNavigationTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.navigationTimeout = d
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.pollInterval = d
	}
}

func WithCheckTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.checkTimeout = d
	}
}

func NewRunner(driver browser.Driver, opts ...Option) *Runner {
	r := &Runner{
		driver:            driver,
		log:               zap.NewNop(),
		reporter:          discardReporter,
		now:               time.Now,
		evidenceDir:       DefaultEvidenceDir,
		navigationTimeout: DefaultNavigationTimeout,
		pollInterval:      DefaultPollInterval,
		checkTimeout:      DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one suite. The returned error is only set for an invalid suite;
// everything that happens against the page is recorded in the report.
func (r *Runner) Run(ctx context.Context, suite *Suite) (*RunReport, error) {
	if err := suite.Normalize(); err != nil {
		return nil, NewUsageError(err)
	}
	return r.run(ctx, suite, NewCollector(r.evidenceDir, r.log), r.reporter), nil
}

// RunAll runs independent suites with at most parallel of them at a time. Each
// suite gets its own page from the driver and its own evidence subdirectory.
// Reports come back in the order of suites.
func (r *Runner) RunAll(ctx context.Context, suites []*Suite, parallel int) ([]*RunReport, error) {
	for _, s := range suites {
		if err := s.Normalize(); err != nil {
			return nil, NewUsageError(err)
		}
	}
	uniqueNames(suites)

	root := NewCollector(r.evidenceDir, r.log)
	reports := make([]*RunReport, len(suites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, s := range suites {
		collector, reporter := root, r.reporter
		if len(suites) > 1 {
			collector = root.Sub(s.Name)
			if r.console != nil {
				reporter = r.console.ForSuite(s.Name)
			}
		}
		g.Go(func() error {
			reports[i] = r.run(gctx, s, collector, reporter)
			return nil
		})
	}
	_ = g.Wait()
	return reports, nil
}

// uniqueNames renames suites whose evidence directory would clash with one
// already taken, e.g. "Studio" after "studio".
func uniqueNames(suites []*Suite) {
	taken := map[string]bool{}
	for _, s := range suites {
		name := s.Name
		for n := 2; taken[dirName(name)]; n++ {
			name = fmt.Sprintf("%s-%d", s.Name, n)
		}
		taken[dirName(name)] = true
		s.Name = name
	}
}

type run struct {
	*Runner
	suite    *Suite
	report   *RunReport
	phases   *phaseTracker
	evidence *Collector
	reporter Reporter
	log      *zap.Logger
	page     browser.Page
}

func (r *Runner) run(ctx context.Context, suite *Suite, evidence *Collector, reporter Reporter) *RunReport {
	x := &run{
		Runner:   r,
		suite:    suite,
		report:   newReport(suite, r.now()),
		phases:   newPhaseTracker(),
		evidence: evidence,
		reporter: reporter,
		log:      r.log.With(zap.String("suite", suite.Name)),
	}
	defer x.finish()
	defer x.closePage()
	defer func() {
		if p := recover(); p != nil {
			x.fail(ctx, errors.Errorf("panic during %s: %v", x.phases.current, p))
		}
	}()
	x.execute(ctx)
	return x.report
}

func (x *run) execute(ctx context.Context) {
	nav := NewNavigator(x.log, x.navigationTimeout, x.pollInterval)
	target := x.suite.Target

	x.advance(PhaseNavigating)
	x.reporter.Report(fmt.Sprintf("Navigating to %s...", target.URL))
	page, err := x.driver.Open(ctx, target.PageOptions())
	if err != nil {
		x.fail(ctx, &NavigationError{URL: target.URL, Err: errors.Wrapf(err, "failed to open page")})
		return
	}
	x.page = page

	loaded, err := nav.Navigate(ctx, page, target)
	if err != nil {
		x.fail(ctx, err)
		return
	}
	x.report.FinalURL, x.report.Status = loaded.URL, loaded.Status
	x.reporter.Report(fmt.Sprintf("Current URL: %s (status %d)", loaded.URL, loaded.Status))
	if msg := redirectDiagnostic(loaded, target, x.suite.RedirectGuards); msg != "" {
		x.report.diagnose("%s", msg)
	}

	if !x.suite.Readiness.IsZero() {
		x.reporter.Report(fmt.Sprintf("Waiting for %s...", x.suite.Readiness))
	}
	err = nav.WaitReady(ctx, page, x.suite.Readiness)
	var timeout *ReadinessTimeoutError
	switch {
	case errors.As(err, &timeout):
		x.report.ReadinessTimedOut = true
		x.report.diagnose("%s", timeout.Error())
		x.reporter.Report(fmt.Sprintf("%q not found within %s, checking anyway", timeout.Selector, timeout.Timeout))
		x.advance(PhaseReadinessTimedOut)
	case err != nil:
		x.fail(ctx, errors.Wrapf(err, "readiness wait aborted"))
		return
	default:
		x.advance(PhaseReady)
	}
	x.capture(ctx, x.suite.Checkpoints.Initial)

	x.advance(PhaseChecking)
	x.reporter.Report(fmt.Sprintf("Checking %d expectations...", len(x.suite.Expectations)))
	x.report.Results = NewVerifier(x.log, x.checkTimeout).Verify(ctx, page, x.suite.Expectations)
	if ctx.Err() != nil {
		x.fail(ctx, errors.Wrapf(ctx.Err(), "run cancelled while checking"))
		return
	}
	x.interact(ctx, page)

	x.advance(PhaseReporting)
	x.capture(ctx, x.suite.Checkpoints.Final)
	x.report.Passed = Passed(x.report.Results)
	x.advance(PhaseDone)
}

func (x *run) interact(ctx context.Context, page browser.Page) {
	for _, in := range x.suite.Interactions {
		q := browser.Query{Text: in.Click, Exact: in.Exact}
		x.reporter.Report(fmt.Sprintf("Clicking on %q...", in.Click))
		if err := page.Click(ctx, q); err != nil {
			x.report.diagnose("click on %q failed: %v", in.Click, err)
			continue
		}
		if err := sleep(ctx, in.Settle); err != nil {
			return
		}
		x.capture(ctx, in.Checkpoint)
	}
}

func (x *run) capture(ctx context.Context, checkpoint string) {
	path, err := x.evidence.Capture(ctx, x.page, checkpoint, lo.FromPtr(x.suite.Checkpoints.FullPage))
	if err != nil {
		x.log.Warn("evidence not captured", zap.Error(err))
		return
	}
	x.report.Evidence = append(x.report.Evidence, path)
}

func (x *run) advance(next Phase) {
	if err := x.phases.to(next); err != nil {
		x.log.DPanic("phase tracking", zap.Error(err))
	}
}

// fail records a run-level error and moves to FailureCaptured after a best
// effort screenshot of whatever the page currently shows.
func (x *run) fail(ctx context.Context, err error) {
	if x.phases.current.Terminal() || x.phases.current == PhaseFailureCaptured {
		return
	}
	x.log.Error("run failed", zap.Error(err))
	x.report.Error = err.Error()
	x.report.Passed = false
	x.reporter.Report("Verification failed: " + err.Error())
	if path := x.evidence.CaptureFailure(context.WithoutCancel(ctx), x.page, x.suite.Checkpoints.Failure); path != "" {
		x.report.Evidence = append(x.report.Evidence, path)
	}
	x.advance(PhaseFailureCaptured)
	x.advance(PhaseDone)
}

func (x *run) closePage() {
	if x.page == nil {
		return
	}
	if err := x.page.Close(); err != nil {
		x.log.Warn("failed to close page", zap.Error(err))
	}
}

func (x *run) finish() {
	x.report.Phase = x.phases.current
	x.report.Phases = x.phases.history
	x.report.FinishedAt = x.now()
	if x.metrics != nil {
		x.metrics.Observe(x.report)
	}
}
