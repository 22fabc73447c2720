package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/config"
	"github.com/integrail/uismoke/pkg/smoke"
	"github.com/integrail/uismoke/pkg/util"
	"github.com/integrail/uismoke/pkg/watch"
)

type runOptions struct {
	*rootOptions

	name         string
	url          string
	headers      []string
	viewport     string
	ready        string
	readyTimeout time.Duration
	delay        time.Duration
	expect       []string
	exact        bool
	require      string
	click        []string
	parallel     int
	watch        bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "run [suite.yaml ...]",
		Short: "Run smoke suites from files, or one suite described by flags",
		Example: `  uismoke run suites/*.yaml -P 4 --report out/report.json
  uismoke run --url http://localhost:3000/scenes -H "x-df-client: desktop" \
    --ready text=Library --expect Library --expect "Sound Effects"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context(), cmd, args)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&o.name, "name", "", "Suite name (default: derived from the URL)")
	flags.StringVar(&o.url, "url", "", "Page to check")
	flags.StringArrayVarP(&o.headers, "header", "H", nil, `Extra request header, "name: value" (repeatable)`)
	flags.StringVar(&o.viewport, "viewport", "", "Viewport as WIDTHxHEIGHT, e.g. 1920x1080")
	flags.StringVar(&o.ready, "ready", "", "Readiness selector: text=<fragment> or CSS")
	flags.DurationVar(&o.readyTimeout, "ready-timeout", smoke.DefaultReadinessTimeout, "Max wait for the readiness selector")
	flags.DurationVar(&o.delay, "delay", 0, "Fixed wait instead of a readiness selector")
	flags.StringArrayVarP(&o.expect, "expect", "e", nil, "Text expected on the page (repeatable)")
	flags.BoolVar(&o.exact, "exact", false, "Expected texts must match a text node exactly")
	flags.StringVar(&o.require, "require", string(smoke.RequireVisible), "Requirement for every --expect: visible, present, absent or none")
	flags.StringArrayVar(&o.click, "click", nil, "Text to click after the checks, a screenshot follows each click (repeatable)")
	flags.IntVarP(&o.parallel, "parallel", "P", 1, "Number of suites to run at once")
	flags.BoolVarP(&o.watch, "watch", "w", false, "Run again whenever a suite file changes")
	return cmd
}

func (o *runOptions) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	if o.watch && len(args) == 0 {
		return smoke.NewUsageError(errors.New("--watch needs suite files"))
	}
	if len(args) > 0 && o.url != "" {
		return smoke.NewUsageError(errors.New("--url cannot be combined with suite files"))
	}
	// fail on bad suites before a browser is started
	if _, err := o.suites(args); err != nil {
		return err
	}

	driver, err := o.newDriver()
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			o.log.Warn("failed to close browser", zap.Error(err))
		}
	}()

	console := smoke.NewConsole(cmd.OutOrStdout())
	metrics := smoke.NewMetrics()
	runner := smoke.NewRunner(driver,
		smoke.WithLogger(o.log),
		smoke.WithConsole(console),
		smoke.WithMetrics(metrics),
		smoke.WithEvidenceDir(o.settings.Output.Dir),
		smoke.WithNavigationTimeout(o.settings.Browser.NavigationTimeout),
		smoke.WithPollInterval(o.settings.Browser.PollInterval),
		smoke.WithCheckTimeout(o.settings.Browser.CheckTimeout),
	)

	once := func(ctx context.Context) error {
		suites, err := o.suites(args)
		if err != nil {
			return err
		}
		reports, err := runner.RunAll(ctx, suites, o.parallel)
		if err != nil {
			return err
		}
		for _, r := range reports {
			console.PrintReport(r)
		}
		if path := o.settings.Output.Report; path != "" {
			if err := smoke.WriteJSON(path, reports); err != nil {
				return err
			}
		}
		if path := o.settings.Output.Metrics; path != "" {
			if err := metrics.WriteTextfile(path); err != nil {
				return err
			}
		}
		if !smoke.AllPassed(reports) {
			return smoke.ErrChecksFailed
		}
		return nil
	}
	if !o.watch {
		return once(ctx)
	}

	var last error
	err = watch.New(o.log, 0, args...).Run(ctx, func(ctx context.Context) error {
		last = once(ctx)
		console.Report("Waiting for changes, Ctrl^C to exit...")
		return last
	})
	return lo.Ternary(err != nil, err, last)
}

func (o *runOptions) suites(args []string) ([]*smoke.Suite, error) {
	if len(args) > 0 {
		suites, err := config.LoadSuites(args)
		return suites, smoke.NewUsageError(err)
	}
	s, err := o.adhocSuite()
	if err != nil {
		return nil, smoke.NewUsageError(err)
	}
	return []*smoke.Suite{s}, nil
}

func (o *runOptions) adhocSuite() (*smoke.Suite, error) {
	if o.url == "" {
		return nil, errors.New("either suite files or --url is required")
	}
	target := smoke.Target{URL: o.url}
	if len(o.headers) > 0 {
		target.Headers = map[string]string{}
		for _, h := range o.headers {
			k, v, err := util.SplitHeader(h)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid --header")
			}
			target.Headers[k] = v
		}
	}
	if o.viewport != "" {
		vp, err := smoke.ParseViewport(o.viewport)
		if err != nil {
			return nil, err
		}
		target.Viewport = vp
	}
	require, err := smoke.ParseRequirement(o.require)
	if err != nil {
		return nil, err
	}

	s := smoke.NewSuite(o.name, target).
		WithReadiness(smoke.Readiness{Selector: o.ready, Delay: o.delay}).
		Expect(lo.Map(o.expect, func(text string, _ int) smoke.Expectation {
			return smoke.Expectation{Text: text, Exact: o.exact, Require: require}
		})...).
		Interact(lo.Map(o.click, func(text string, _ int) smoke.Interaction {
			return smoke.Interaction{Click: text}
		})...)
	if o.ready != "" {
		s.Readiness.Timeout = o.readyTimeout
	}
	return s, s.Normalize()
}
