package smoke

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
)

const DefaultPollInterval = 250 * time.Millisecond

type Navigator struct {
	log          *zap.Logger
	timeout      time.Duration
	pollInterval time.Duration
}

func NewNavigator(log *zap.Logger, navigationTimeout, pollInterval time.Duration) *Navigator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Navigator{log: log, timeout: navigationTimeout, pollInterval: pollInterval}
}

// Navigate loads the target. Any failure is a *NavigationError; it is never
// retried because a dead server is a hard stop for the run.
func (n *Navigator) Navigate(ctx context.Context, page browser.Page, target Target) (*browser.Navigation, error) {
	navCtx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	n.log.Debug("navigating", zap.String("url", target.URL), zap.Duration("timeout", n.timeout))
	nav, err := page.Navigate(navCtx, target.URL)
	if err != nil {
		return nil, &NavigationError{URL: target.URL, Err: err}
	}
	n.log.Debug("navigated", zap.String("url", nav.URL), zap.Int("status", nav.Status))
	return nav, nil
}

// WaitReady blocks until the readiness condition holds. A selector that never
// becomes visible yields *ReadinessTimeoutError.
func (n *Navigator) WaitReady(ctx context.Context, page browser.Page, r Readiness) error {
	switch {
	case r.Selector != "":
		return n.poll(ctx, page, r)
	case r.Delay > 0:
		return sleep(ctx, r.Delay)
	}
	return nil
}

func (n *Navigator) poll(ctx context.Context, page browser.Page, r Readiness) error {
	q := browser.ParseSelector(r.Selector)
	timeout := r.timeout()
	deadline := time.Now().Add(timeout)

	var lastErr error
	for {
		pollCtx, cancel := context.WithDeadline(ctx, deadline)
		m, err := page.Query(pollCtx, q)
		cancel()
		switch {
		case err != nil:
			lastErr = err
			n.log.Debug("readiness probe failed", zap.String("selector", r.Selector), zap.Error(err))
		case m != nil && m.Visibility == browser.Visible:
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &ReadinessTimeoutError{Selector: r.Selector, Timeout: timeout, Err: lastErr}
		}
		if err := sleep(ctx, min(n.pollInterval, remaining)); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// redirectDiagnostic returns a message when the final URL looks like an auth
// redirect, e.g. the gate the x-df-client header is meant to bypass.
func redirectDiagnostic(nav *browser.Navigation, target Target, guards []string) string {
	if nav == nil || nav.URL == "" || nav.URL == target.URL {
		return ""
	}
	for _, g := range guards {
		if g != "" && strings.Contains(nav.URL, g) && !strings.Contains(target.URL, g) {
			return "redirected to " + nav.URL + " (matched " + g + ")"
		}
	}
	return ""
}
