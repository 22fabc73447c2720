// Package static checks server-rendered HTML without a browser. Nothing on the
// page is executed, so client-rendered content is reported as absent.
package static

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
)

var ErrScreenshotUnsupported = errors.New("screenshots are not supported by the static backend")

const userAgent = "Mozilla/5.0 (compatible; uismoke)"

type Driver struct {
	client *http.Client
	log    *zap.Logger
}

func NewDriver(timeout time.Duration, log *zap.Logger) *Driver {
	return &Driver{client: &http.Client{Timeout: timeout}, log: log}
}

func (d *Driver) Open(_ context.Context, opts browser.PageOptions) (browser.Page, error) {
	return &page{client: d.client, headers: opts.Headers, log: d.log}, nil
}

func (d *Driver) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

type page struct {
	client  *http.Client
	headers map[string]string
	log     *zap.Logger

	url *url.URL
	doc *goquery.Document
}

func (p *page) Navigate(ctx context.Context, target string) (*browser.Navigation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid url %s", target)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", target)
	}
	p.url, p.doc = resp.Request.URL, doc
	p.log.Debug("fetched page", zap.String("url", p.url.String()), zap.Int("status", resp.StatusCode))
	return &browser.Navigation{URL: p.url.String(), Status: resp.StatusCode}, nil
}

func (p *page) find(q browser.Query) (*goquery.Selection, error) {
	if p.doc == nil {
		return nil, errors.New("no document loaded")
	}
	if !q.IsText() {
		return p.doc.Find(q.Selector), nil
	}
	if q.Exact {
		return p.doc.Find("body, body *").FilterFunction(func(_ int, el *goquery.Selection) bool {
			if el.Closest("script, style, noscript, template").Length() > 0 {
				return false
			}
			return el.Contents().FilterFunction(func(_ int, c *goquery.Selection) bool {
				return goquery.NodeName(c) == "#text" && q.MatchText(c.Text())
			}).Length() > 0
		}), nil
	}
	body := p.doc.Find("body")
	m := &textMatcher{q: q, found: body.Slice(0, 0)}
	body.Each(func(_ int, el *goquery.Selection) {
		m.visit(el)
	})
	return m.found, nil
}

// textMatcher collects the innermost elements whose rendered text contains
// the query, so text split across inline children still matches.
type textMatcher struct {
	q     browser.Query
	found *goquery.Selection
}

// visit returns the rendered text of el and whether it matches.
func (m *textMatcher) visit(el *goquery.Selection) (string, bool) {
	var b strings.Builder
	inner := false
	el.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			b.WriteString(c.Text())
		case strings.HasPrefix(name, "#") || skipped(c):
		default:
			text, hit := m.visit(c)
			b.WriteString(text)
			inner = inner || hit
		}
	})
	text := b.String()
	hit := inner || m.q.MatchText(text)
	if hit && !inner {
		m.found = m.found.AddSelection(el)
	}
	return text, hit
}

func (p *page) Query(_ context.Context, q browser.Query) (*browser.Match, error) {
	found, err := p.find(q)
	if err != nil {
		return nil, err
	}
	m := &browser.Match{Visibility: browser.Absent, Count: found.Length()}
	if m.Count > 0 {
		m.Visibility = browser.PresentHidden
		if found.FilterFunction(func(_ int, el *goquery.Selection) bool { return !hidden(el) }).Length() > 0 {
			m.Visibility = browser.Visible
		}
	}
	return m, nil
}

// Click follows the link that contains the first match. Anything else needs
// scripting and is reported as an error.
func (p *page) Click(ctx context.Context, q browser.Query) error {
	found, err := p.find(q)
	if err != nil {
		return err
	}
	if found.Length() == 0 {
		return errors.Errorf("no element matches %s", q)
	}
	link := found.First().Closest("a[href]")
	href, ok := link.Attr("href")
	if !ok {
		return errors.Errorf("%s is not a link, clicking it requires a browser backend", q)
	}
	next, err := p.url.Parse(href)
	if err != nil {
		return errors.Wrapf(err, "invalid link %q", href)
	}
	_, err = p.Navigate(ctx, next.String())
	return err
}

func (p *page) Screenshot(context.Context, bool) ([]byte, error) {
	return nil, ErrScreenshotUnsupported
}

func (p *page) Close() error {
	p.doc = nil
	return nil
}

func skipped(el *goquery.Selection) bool {
	switch goquery.NodeName(el) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// hidden approximates computed visibility from markup alone.
func hidden(el *goquery.Selection) bool {
	return el.AddSelection(el.Parents()).FilterFunction(func(_ int, s *goquery.Selection) bool {
		if skipped(s) {
			return true
		}
		if _, ok := s.Attr("hidden"); ok {
			return true
		}
		if s.AttrOr("aria-hidden", "") == "true" {
			return true
		}
		return hiddenStyle(s.AttrOr("style", ""))
	}).Length() > 0
}

func hiddenStyle(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important")))
		switch {
		case prop == "display" && value == "none",
			prop == "visibility" && (value == "hidden" || value == "collapse"),
			prop == "opacity" && (value == "0" || value == "0.0"):
			return true
		}
	}
	return false
}
