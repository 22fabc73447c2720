package smoke

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Interaction clicks on a text fragment once the checklist has been verified
// and captures a checkpoint after the page settles.
type Interaction struct {
	Click      string        `json:"click" yaml:"click"`
	Exact      bool          `json:"exact,omitempty" yaml:"exact,omitempty"`
	Settle     time.Duration `json:"settle,omitempty" yaml:"settle,omitempty"`
	Checkpoint string        `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

// Checkpoints names the screenshots of a run. Initial is taken once the
// readiness wait is over, whether it succeeded or timed out.
type Checkpoints struct {
	Initial  string `json:"initial,omitempty" yaml:"initial,omitempty"`
	Final    string `json:"final,omitempty" yaml:"final,omitempty"`
	Failure  string `json:"failure,omitempty" yaml:"failure,omitempty"`
	FullPage *bool  `json:"fullPage,omitempty" yaml:"fullPage,omitempty"`
}

const (
	DefaultInitialCheckpoint = "initial"
	DefaultFinalCheckpoint   = "final"
	DefaultFailureCheckpoint = "failure"
	DefaultInteractionSettle = time.Second
)

var DefaultRedirectGuards = []string{"/login", "/sign-in"}

type Suite struct {
	Name           string        `json:"name" yaml:"name"`
	Target         Target        `json:"target" yaml:"target"`
	Readiness      Readiness     `json:"readiness,omitempty" yaml:"readiness,omitempty"`
	Expectations   []Expectation `json:"expectations" yaml:"expectations"`
	Interactions   []Interaction `json:"interactions,omitempty" yaml:"interactions,omitempty"`
	Checkpoints    Checkpoints   `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"`
	RedirectGuards []string      `json:"redirectGuards,omitempty" yaml:"redirectGuards,omitempty"`
}

func NewSuite(name string, target Target) *Suite {
	return &Suite{Name: name, Target: target}
}

func (s *Suite) WithReadiness(r Readiness) *Suite {
	s.Readiness = r
	return s
}

func (s *Suite) WaitFor(selector string, timeout time.Duration) *Suite {
	return s.WithReadiness(Readiness{Selector: selector, Timeout: timeout})
}

func (s *Suite) Expect(items ...Expectation) *Suite {
	s.Expectations = append(s.Expectations, items...)
	return s
}

// ExpectVisible adds substring expectations that must be visible.
func (s *Suite) ExpectVisible(texts ...string) *Suite {
	return s.Expect(lo.Map(texts, func(text string, _ int) Expectation {
		return Expectation{Text: text, Require: RequireVisible}
	})...)
}

func (s *Suite) Interact(items ...Interaction) *Suite {
	s.Interactions = append(s.Interactions, items...)
	return s
}

// Normalize fills defaults in place and validates the suite.
func (s *Suite) Normalize() error {
	s.Target.URL = strings.TrimSpace(s.Target.URL)
	if s.Target.URL == "" {
		return errors.New("target url is required")
	}
	u, err := url.Parse(s.Target.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("invalid target url %q", s.Target.URL)
	}
	if s.Name == "" {
		s.Name = suiteNameFromURL(u)
	}
	if err := s.Readiness.Validate(); err != nil {
		return errors.Wrapf(err, "suite %q", s.Name)
	}
	if s.Readiness.Selector != "" && s.Readiness.Timeout == 0 {
		s.Readiness.Timeout = DefaultReadinessTimeout
	}
	if len(s.Expectations) == 0 {
		return errors.Errorf("suite %q has no expectations", s.Name)
	}
	for i := range s.Expectations {
		e := &s.Expectations[i]
		if strings.TrimSpace(e.Text) == "" {
			return errors.Errorf("suite %q: expectation #%d has empty text", s.Name, i+1)
		}
		if e.Require, err = ParseRequirement(string(e.Require)); err != nil {
			return errors.Wrapf(err, "suite %q: expectation %q", s.Name, e.Text)
		}
	}
	for i := range s.Interactions {
		in := &s.Interactions[i]
		if strings.TrimSpace(in.Click) == "" {
			return errors.Errorf("suite %q: interaction #%d has nothing to click", s.Name, i+1)
		}
		if in.Settle == 0 {
			in.Settle = DefaultInteractionSettle
		}
		if in.Checkpoint == "" {
			in.Checkpoint = "after-" + in.Click
		}
	}
	s.Checkpoints.Initial = lo.Ternary(s.Checkpoints.Initial == "", DefaultInitialCheckpoint, s.Checkpoints.Initial)
	s.Checkpoints.Final = lo.Ternary(s.Checkpoints.Final == "", DefaultFinalCheckpoint, s.Checkpoints.Final)
	s.Checkpoints.Failure = lo.Ternary(s.Checkpoints.Failure == "", DefaultFailureCheckpoint, s.Checkpoints.Failure)
	if s.Checkpoints.FullPage == nil {
		s.Checkpoints.FullPage = lo.ToPtr(true)
	}
	if s.RedirectGuards == nil {
		s.RedirectGuards = DefaultRedirectGuards
	}
	return nil
}

func suiteNameFromURL(u *url.URL) string {
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return u.Hostname()
	}
	return strings.ReplaceAll(name, "/", "-")
}
