package smoke

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/savioxavier/termlink"
)

type Reporter interface {
	Report(msg string)
}

type ReporterFunc func(msg string)

func (f ReporterFunc) Report(msg string) { f(msg) }

var discardReporter = ReporterFunc(func(string) {})

// Console prints progress lines and final reports. It is safe for concurrent
// use by parallel suites.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	header  lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	faint   lipgloss.Style
	verdict lipgloss.Style
}

func NewConsole(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:     out,
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFF88")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("#FF3333")),
		faint:   r.NewStyle().Faint(true),
		verdict: r.NewStyle().Bold(true).Padding(0, 1),
	}
}

func (c *Console) Report(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.faint.Render(msg))
}

// ForSuite prefixes progress lines with the suite name.
func (c *Console) ForSuite(name string) Reporter {
	return ReporterFunc(func(msg string) {
		c.Report(fmt.Sprintf("[%s] %s", name, msg))
	})
}

func (c *Console) PrintReport(r *RunReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, c.header.Render(fmt.Sprintf("%s: %s", r.Suite, r.Target)))
	if r.FinalURL != "" && r.FinalURL != r.Target {
		fmt.Fprintf(c.out, "  current URL: %s\n", r.FinalURL)
	}
	if r.Status != 0 {
		fmt.Fprintf(c.out, "  response status: %d\n", r.Status)
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintln(c.out, "  "+c.warn.Render("⚠ "+d))
	}
	for _, res := range r.Results {
		fmt.Fprintln(c.out, "  "+c.resultLine(res))
	}
	if r.Error != "" {
		fmt.Fprintln(c.out, "  "+c.fail.Render("✗ "+r.Error))
	}
	fmt.Fprintf(c.out, "  %s in %s\n", r.Tally(), r.Duration().Round(time.Millisecond))
	for _, path := range r.Evidence {
		fmt.Fprintln(c.out, "  evidence: "+FileLink(path))
	}
	if r.Passed {
		fmt.Fprintln(c.out, "  "+c.verdict.Inherit(c.ok).Render("PASS"))
	} else {
		fmt.Fprintln(c.out, "  "+c.verdict.Inherit(c.fail).Render("FAIL"))
	}
}

func (c *Console) resultLine(res CheckResult) string {
	line := DescribeResult(res)
	switch {
	case !res.Passed:
		return c.fail.Render("✗ " + line)
	case res.State == StateVisible:
		return c.ok.Render("✓ " + line)
	default:
		return c.warn.Render("• " + line)
	}
}

// FileLink renders path as a terminal hyperlink to its absolute file URL.
func FileLink(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return termlink.ColorLink(path, "file://"+abs, "italic green")
}
