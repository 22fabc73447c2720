// Package baas runs pages on the remote Browser-as-a-Service through
// pkg/client. Each page is its own remote session.
package baas

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
	"github.com/integrail/uismoke/pkg/client"
)

// visibilityTimeout bounds the waitVisible probe for an element that is known
// to be present.
const visibilityTimeout = "1s"

const documentTimeout = "10s"

type Driver struct {
	cfg  client.Config
	log  *zap.Logger
	opts []client.Option
}

func NewDriver(cfg client.Config, log *zap.Logger, opts ...client.Option) *Driver {
	return &Driver{cfg: cfg, log: log, opts: opts}
}

type logReporter struct {
	log *zap.Logger
}

func (r logReporter) Report(msg string) {
	r.log.Debug(msg)
}

func (d *Driver) Open(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	if len(opts.Headers) > 0 {
		d.log.Warn("custom request headers are not supported by the remote browser and are ignored",
			zap.Strings("headers", lo.Keys(opts.Headers)))
	}
	clientOpts := append([]client.Option{
		client.WithLogger(d.log),
		client.WithViewport(opts.Width, opts.Height),
	}, d.opts...)
	prog, err := client.NewProgram(ctx, d.cfg, logReporter{log: d.log}, clientOpts...)
	if err != nil {
		return nil, err
	}
	return &page{prog: prog}, nil
}

func (d *Driver) Close() error {
	return nil
}

type page struct {
	prog client.Program
	shot int
}

func (p *page) Navigate(ctx context.Context, url string) (*browser.Navigation, error) {
	status, err := p.prog.NavigateStatus(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := p.prog.WaitReady(ctx, "body", client.WithTimeout(documentTimeout)); err != nil {
		return nil, errors.Wrapf(err, "document did not load")
	}
	final, err := p.prog.GetURL(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read current url")
	}
	return &browser.Navigation{URL: final, Status: status}, nil
}

// Query asks the session whether a match exists and then whether it becomes
// visible. The remote service does not report counts, so Count is 0 or 1.
func (p *page) Query(ctx context.Context, q browser.Query) (*browser.Match, error) {
	sel := Selector(q)
	present, err := p.prog.IsElementPresent(ctx, sel)
	if err != nil {
		return nil, err
	}
	if !present {
		return &browser.Match{Visibility: browser.Absent}, nil
	}
	err = p.prog.WaitVisible(ctx, sel, client.WithTimeout(visibilityTimeout))
	var progErr *client.ProgramError
	switch {
	case err == nil:
		return &browser.Match{Visibility: browser.Visible, Count: 1}, nil
	case errors.As(err, &progErr):
		return &browser.Match{Visibility: browser.PresentHidden, Count: 1}, nil
	default:
		return nil, err
	}
}

func (p *page) Click(ctx context.Context, q browser.Query) error {
	return p.prog.Click(ctx, Selector(q))
}

func (p *page) Screenshot(ctx context.Context, _ bool) ([]byte, error) {
	p.shot++
	return p.prog.TakeScreenshot(ctx, fmt.Sprintf("shot-%d", p.shot))
}

func (p *page) Close() error {
	return p.prog.Close()
}

// Selector translates a query into the selector syntax of the remote service:
// CSS as is, exact text as an XPath over elements' own text nodes, other text
// as an XPath over the innermost elements containing it.
func Selector(q browser.Query) string {
	if !q.IsText() {
		return q.Selector
	}
	needle := browser.NormalizeText(q.Text)
	if q.Exact {
		return fmt.Sprintf("//*[text()[normalize-space(.)=%s]]", xpathLiteral(needle))
	}
	const upper, lower = "ABCDEFGHIJKLMNOPQRSTUVWXYZ", "abcdefghijklmnopqrstuvwxyz"
	contains := fmt.Sprintf("contains(translate(normalize-space(.),'%s','%s'),%s)", upper, lower, xpathLiteral(strings.ToLower(needle)))
	// innermost elements whose whole text matches, so split inline text is found
	return fmt.Sprintf("//*[not(self::script or self::style or self::noscript or self::template)][%s][not(*[%s])]", contains, contains)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := lo.Map(parts, func(part string, _ int) string { return "'" + part + "'" })
	return "concat(" + strings.Join(quoted, `,"'",`) + ")"
}
