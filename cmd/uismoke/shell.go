package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
	"github.com/integrail/uismoke/pkg/shell"
	"github.com/integrail/uismoke/pkg/smoke"
	"github.com/integrail/uismoke/pkg/util"
)

func newShellCmd(root *rootOptions) *cobra.Command {
	var (
		url      string
		headers  []string
		viewport string
	)
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive prompt to probe a live page",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := shell.Options{URL: url, OutDir: root.settings.Output.Dir}
			for _, h := range headers {
				k, v, err := util.SplitHeader(h)
				if err != nil {
					return smoke.NewUsageError(errors.Wrapf(err, "invalid --header"))
				}
				opts.Page.Headers = lo.Assign(opts.Page.Headers, map[string]string{k: v})
			}
			if viewport != "" {
				vp, err := smoke.ParseViewport(viewport)
				if err != nil {
					return smoke.NewUsageError(err)
				}
				opts.Page.Width, opts.Page.Height = vp.Width, vp.Height
			}
			driver, err := root.newDriver()
			if err != nil {
				return err
			}
			defer func() {
				if err := driver.Close(); err != nil {
					root.log.Warn("failed to close browser", zap.Error(err))
				}
			}()
			return runShell(cmd, driver, opts, root.log)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Page to open first")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, `Extra request header, "name: value" (repeatable)`)
	cmd.Flags().StringVar(&viewport, "viewport", "", "Viewport as WIDTHxHEIGHT")
	return cmd
}

func runShell(cmd *cobra.Command, driver browser.Driver, opts shell.Options, log *zap.Logger) error {
	m := shell.New(cmd.Context(), driver, opts, log)
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("failed to close page", zap.Error(err))
		}
	}()
	p := tea.NewProgram(m, tea.WithContext(cmd.Context()), tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
