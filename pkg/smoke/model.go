package smoke

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/integrail/uismoke/pkg/browser"
)

type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// ParseViewport parses "1920x1080".
func ParseViewport(s string) (*Viewport, error) {
	var v Viewport
	if _, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(s)), "%dx%d", &v.Width, &v.Height); err != nil {
		return nil, errors.Errorf("invalid viewport %q, expected WIDTHxHEIGHT", s)
	}
	if v.Width <= 0 || v.Height <= 0 {
		return nil, errors.Errorf("invalid viewport %q, dimensions must be positive", s)
	}
	return &v, nil
}

// Target is the page under test. It is not modified during a run.
type Target struct {
	URL      string            `json:"url" yaml:"url"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Viewport *Viewport         `json:"viewport,omitempty" yaml:"viewport,omitempty"`
}

func (t Target) PageOptions() browser.PageOptions {
	opts := browser.PageOptions{Headers: t.Headers}
	if t.Viewport != nil {
		opts.Width = t.Viewport.Width
		opts.Height = t.Viewport.Height
	}
	return opts
}

// Readiness is either a selector that must become visible within Timeout or a
// fixed Delay. The zero value means "do not wait".
type Readiness struct {
	Selector string        `json:"selector,omitempty" yaml:"selector,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Delay    time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
}

const DefaultReadinessTimeout = 5 * time.Second

func (r Readiness) IsZero() bool {
	return r.Selector == "" && r.Delay == 0
}

func (r Readiness) Validate() error {
	switch {
	case r.Selector != "" && r.Delay != 0:
		return errors.New("readiness must be either a selector or a delay, not both")
	case r.Delay < 0:
		return errors.Errorf("readiness delay must not be negative, got %s", r.Delay)
	case r.Timeout < 0:
		return errors.Errorf("readiness timeout must not be negative, got %s", r.Timeout)
	case r.Selector == "" && r.Timeout != 0:
		return errors.New("readiness timeout requires a selector")
	}
	return nil
}

func (r Readiness) String() string {
	switch {
	case r.Selector != "":
		return fmt.Sprintf("selector %q within %s", r.Selector, r.timeout())
	case r.Delay > 0:
		return fmt.Sprintf("fixed delay of %s", r.Delay)
	}
	return "none"
}

func (r Readiness) timeout() time.Duration {
	if r.Timeout == 0 {
		return DefaultReadinessTimeout
	}
	return r.Timeout
}

type Requirement string

const (
	RequireVisible Requirement = "visible"
	RequirePresent Requirement = "present"
	RequireAbsent  Requirement = "absent"
	RequireNone    Requirement = "none"
)

func ParseRequirement(s string) (Requirement, error) {
	switch r := Requirement(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RequireVisible, nil
	case RequireVisible, RequirePresent, RequireAbsent, RequireNone:
		return r, nil
	}
	return "", errors.Errorf("unknown requirement %q (visible, present, absent, none)", s)
}

// Satisfied reports whether the observed state meets the requirement.
func (r Requirement) Satisfied(s State) bool {
	switch r {
	case RequirePresent:
		return s == StateVisible || s == StateHidden
	case RequireAbsent:
		return s == StateAbsent
	case RequireNone:
		return true
	default:
		return s == StateVisible
	}
}

type Expectation struct {
	Text    string      `json:"text" yaml:"text"`
	Exact   bool        `json:"exact,omitempty" yaml:"exact,omitempty"`
	Require Requirement `json:"require,omitempty" yaml:"require,omitempty"`
}

// UnmarshalYAML also accepts a bare string as a visible-substring expectation.
func (e *Expectation) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*e = Expectation{Text: node.Value}
		return nil
	}
	type plain Expectation
	return node.Decode((*plain)(e))
}

func (e Expectation) Query() browser.Query {
	return browser.Query{Text: e.Text, Exact: e.Exact}
}

func (e Expectation) requirement() Requirement {
	return lo.Ternary(e.Require == "", RequireVisible, e.Require)
}

type State = browser.Visibility

const (
	StateVisible = browser.Visible
	StateHidden  = browser.PresentHidden
	StateAbsent  = browser.Absent
)

type CheckResult struct {
	Expectation Expectation `json:"expectation"`
	State       State       `json:"state"`
	Count       int         `json:"count"`
	Passed      bool        `json:"passed"`
	Error       string      `json:"error,omitempty"`
}
