package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/integrail/uismoke/internal/build"
	"github.com/integrail/uismoke/pkg/config"
	"github.com/integrail/uismoke/pkg/smoke"
)

type rootOptions struct {
	configFile   string
	verbose      bool
	secrets      []string
	values       []string
	cookies      []string
	cookieDomain string

	settings *config.Settings
	log      *zap.Logger
}

// flagKeys binds command line flags to settings keys.
var flagKeys = map[string]string{
	"backend":              "browser.backend",
	"browser-bin":          "browser.bin",
	"headless":             "browser.headless",
	"no-sandbox":           "browser.no_sandbox",
	"control-url":          "browser.control_url",
	"navigation-timeout":   "browser.navigation_timeout",
	"poll-interval":        "browser.poll_interval",
	"check-timeout":        "browser.check_timeout",
	"baas-url":             "baas.url",
	"baas-key":             "baas.api_key",
	"baas-proxy":           "baas.use_proxy",
	"baas-debug":           "baas.local_debug",
	"baas-timeout":         "baas.timeout",
	"baas-message-timeout": "baas.message_timeout",
	"out":                  "output.dir",
	"report":               "output.report",
	"metrics":              "output.metrics",
	"provider":             "llm.provider",
	"llm-url":              "llm.url",
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "uismoke",
		Version:       build.Version,
		Short:         "uismoke checks that a web UI renders what it should",
		Long:          "Navigate a browser to a page, wait until it is ready, check which expected texts are visible and keep screenshots as evidence",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(config.LoadOptions{
				ConfigFile: o.configFile,
				Flags:      cmd.Flags(),
				FlagKeys:   flagKeys,
			})
			if err != nil {
				return smoke.NewUsageError(err)
			}
			o.settings = settings
			o.log, err = newLogger(o.verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.log != nil {
				_ = o.log.Sync()
			}
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return smoke.NewUsageError(err)
	})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.configFile, "config", "", "Config file (default: ./.uismoke.yaml over ~/.config/uismoke/config.yaml)")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Debug logging to stderr")
	flags.String("backend", config.BackendRod, "Browser backend: rod, chromedp, baas or static")
	flags.String("browser-bin", "", "Chrome binary (default: look up an installed one)")
	flags.Bool("headless", true, "Run the local browser headless")
	flags.Bool("no-sandbox", true, "Pass --no-sandbox to the local browser")
	flags.String("control-url", "", "Attach to a running browser's DevTools endpoint instead of launching one")
	flags.Duration("navigation-timeout", smoke.DefaultNavigationTimeout, "Max time for the page to load")
	flags.Duration("poll-interval", smoke.DefaultPollInterval, "How often the readiness selector is probed")
	flags.Duration("check-timeout", smoke.DefaultCheckTimeout, "Max time for a single expectation check")
	flags.StringP("baas-url", "u", "", "BaaS backend URL (env BAAS_URL)")
	flags.StringP("baas-key", "k", "", "BaaS API Key (env BAAS_API_KEY)")
	flags.BoolP("baas-proxy", "p", false, "Use proxy on the BaaS backend")
	flags.BoolP("baas-debug", "d", false, "Headful BaaS browser for local debugging")
	flags.StringP("baas-timeout", "t", "", "Max BaaS session length (duration, e.g. 10m)")
	flags.StringP("baas-message-timeout", "M", "", "Max time to wait for each BaaS message")
	flags.StringSliceVarP(&o.secrets, "secret", "S", []string{}, "Secrets to send to the BaaS backend with each request (name=value)")
	flags.StringSliceVarP(&o.values, "value", "V", []string{}, "Values to send to the BaaS backend with each request (name=value)")
	flags.StringSliceVarP(&o.cookies, "cookie", "C", []string{}, "Cookies to set in the BaaS browser (name=value)")
	flags.StringVarP(&o.cookieDomain, "cookie-domain", "D", "", "Domain of the cookies set with --cookie")
	flags.StringP("out", "o", smoke.DefaultEvidenceDir, "Directory for screenshots")
	flags.String("report", "", "Write a JSON report to this file")
	flags.String("metrics", "", "Write Prometheus metrics in textfile format to this file")

	rootCmd.AddCommand(newRunCmd(o), newShellCmd(o), newPromptCmd(o), newVersionCmd())
	return rootCmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
