package smoke

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type RunReport struct {
	ID                string        `json:"id"`
	Suite             string        `json:"suite"`
	Target            string        `json:"target"`
	FinalURL          string        `json:"finalUrl,omitempty"`
	Status            int           `json:"status,omitempty"`
	Readiness         string        `json:"readiness"`
	StartedAt         time.Time     `json:"startedAt"`
	FinishedAt        time.Time     `json:"finishedAt"`
	Phase             Phase         `json:"phase"`
	Phases            []Phase       `json:"phases"`
	ReadinessTimedOut bool          `json:"readinessTimedOut"`
	Diagnostics       []string      `json:"diagnostics,omitempty"`
	Results           []CheckResult `json:"results"`
	Evidence          []string      `json:"evidence,omitempty"`
	Error             string        `json:"error,omitempty"`
	Passed            bool          `json:"passed"`
}

func newReport(s *Suite, startedAt time.Time) *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		Suite:     s.Name,
		Target:    s.Target.URL,
		Readiness: s.Readiness.String(),
		StartedAt: startedAt,
		Phase:     PhaseIdle,
	}
}

func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunReport) diagnose(format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, fmt.Sprintf(format, args...))
}

type Tally struct {
	Total   int `json:"total"`
	Visible int `json:"visible"`
	Hidden  int `json:"hidden"`
	Absent  int `json:"absent"`
	Failed  int `json:"failed"`
}

func (r *RunReport) Tally() Tally {
	return Tally{
		Total:   len(r.Results),
		Visible: lo.CountBy(r.Results, func(c CheckResult) bool { return c.State == StateVisible }),
		Hidden:  lo.CountBy(r.Results, func(c CheckResult) bool { return c.State == StateHidden }),
		Absent:  lo.CountBy(r.Results, func(c CheckResult) bool { return c.State == StateAbsent }),
		Failed:  lo.CountBy(r.Results, func(c CheckResult) bool { return !c.Passed }),
	}
}

// DescribeResult renders the one-line, human readable verdict for an item.
func DescribeResult(c CheckResult) string {
	var line string
	switch c.State {
	case StateVisible:
		line = fmt.Sprintf("Found: %s", c.Expectation.Text)
	case StateHidden:
		line = fmt.Sprintf("Found %q in DOM (%d times), but not visible", c.Expectation.Text, c.Count)
	default:
		line = fmt.Sprintf("%q NOT found", c.Expectation.Text)
	}
	if req := c.Expectation.requirement(); req != RequireVisible {
		line += fmt.Sprintf(" [require %s]", req)
	}
	if c.Error != "" {
		line += ": " + c.Error
	}
	return line
}

func (t Tally) String() string {
	return fmt.Sprintf("%d/%d visible, %d hidden, %d absent, %d failed", t.Visible, t.Total, t.Hidden, t.Absent, t.Failed)
}

// AllPassed is the exit-code contract: true iff every suite passed.
func AllPassed(reports []*RunReport) bool {
	return len(reports) > 0 && lo.EveryBy(reports, func(r *RunReport) bool { return r != nil && r.Passed })
}

func WriteJSON(path string, reports []*RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create report dir")
	}
	data, err := json.MarshalIndent(struct {
		Passed  bool         `json:"passed"`
		Reports []*RunReport `json:"reports"`
	}{AllPassed(reports), reports}, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal run reports")
	}
	return errors.Wrapf(writeFileAtomic(path, append(data, '\n')), "failed to write report %s", path)
}
