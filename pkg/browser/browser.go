package browser

import (
	"context"
	"strings"
)

type Visibility string

const (
	Visible       Visibility = "visible"
	PresentHidden Visibility = "present-hidden"
	Absent        Visibility = "absent"
)

// Driver opens isolated pages. Every page returned by Open owns its own browser
// context and must be closed by the caller.
type Driver interface {
	Open(ctx context.Context, opts PageOptions) (Page, error)
	Close() error
}

type Page interface {
	Navigate(ctx context.Context, url string) (*Navigation, error)
	Query(ctx context.Context, q Query) (*Match, error)
	Click(ctx context.Context, q Query) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Close() error
}

type PageOptions struct {
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Width   int               `json:"width,omitempty" yaml:"width,omitempty"`
	Height  int               `json:"height,omitempty" yaml:"height,omitempty"`
}

type Navigation struct {
	URL    string `json:"url"`    // final URL after redirects
	Status int    `json:"status"` // HTTP status of the document, 0 when the backend cannot tell
}

// Query selects elements either by rendered text or by CSS selector.
type Query struct {
	Text     string `json:"text,omitempty"`
	Exact    bool   `json:"exact,omitempty"`
	Selector string `json:"selector,omitempty"`
}

type Match struct {
	Visibility Visibility `json:"visibility"`
	Count      int        `json:"count"`
}

const textPrefix = "text="

// ParseSelector understands the "text=Library" form used by the verification
// scripts; anything else is treated as a CSS selector.
func ParseSelector(selector string) Query {
	selector = strings.TrimSpace(selector)
	if strings.HasPrefix(selector, textPrefix) {
		return Query{Text: strings.Trim(strings.TrimPrefix(selector, textPrefix), `"'`)}
	}
	return Query{Selector: selector}
}

func (q Query) String() string {
	if q.Selector != "" {
		return q.Selector
	}
	return textPrefix + q.Text
}

func (q Query) IsText() bool {
	return q.Selector == ""
}

// NormalizeText collapses whitespace the way the DOM probe does.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// MatchText reports whether rendered text satisfies the query: exact queries
// compare normalized text, the others look for a case-insensitive substring.
func (q Query) MatchText(text string) bool {
	text = NormalizeText(text)
	needle := NormalizeText(q.Text)
	if needle == "" {
		return false
	}
	if q.Exact {
		return text == needle
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(needle))
}

// LaunchOptions configures locally launched Chrome for the rod and chromedp
// backends.
type LaunchOptions struct {
	Bin        string // empty means look up an installed Chrome
	Headless   bool
	NoSandbox  bool
	ControlURL string // attach to a running browser instead of launching one
}
