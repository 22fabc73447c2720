package shell

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
	"github.com/integrail/uismoke/pkg/smoke"
)

const helpText = `goto <url>          navigate the page
wait <selector>     wait until a selector (text=... or CSS) is visible
check <text>        classify a text fragment (substring)
exact <text>        classify a text fragment (exact match)
click <text>        click the element with the given text
shot [name]         save a screenshot
help                show this help
quit                leave the shell`

var ErrQuit = errors.New("quit")

type Command struct {
	Name string
	Arg  string
}

func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, errors.New("empty command")
	}
	name, arg, _ := strings.Cut(line, " ")
	cmd := Command{Name: strings.ToLower(name), Arg: strings.TrimSpace(arg)}
	switch cmd.Name {
	case "goto", "wait", "check", "exact", "click":
		if cmd.Arg == "" {
			return Command{}, errors.Errorf("%s needs an argument", cmd.Name)
		}
	case "shot", "help", "quit", "exit":
	default:
		return Command{}, errors.Errorf("unknown command %q, type help", cmd.Name)
	}
	return cmd, nil
}

// Session executes shell commands against a single open page.
type Session struct {
	page      browser.Page
	navigator *smoke.Navigator
	verifier  *smoke.Verifier
	evidence  *smoke.Collector
	readiness time.Duration
	shots     int
}

func NewSession(page browser.Page, outDir string, log *zap.Logger) *Session {
	return &Session{
		page:      page,
		navigator: smoke.NewNavigator(log, smoke.DefaultNavigationTimeout, smoke.DefaultPollInterval),
		verifier:  smoke.NewVerifier(log, smoke.DefaultCheckTimeout),
		evidence:  smoke.NewCollector(outDir, log),
		readiness: smoke.DefaultReadinessTimeout,
	}
}

func (s *Session) Exec(ctx context.Context, line string) (string, error) {
	cmd, err := ParseCommand(line)
	if err != nil {
		return "", err
	}
	switch cmd.Name {
	case "goto":
		nav, err := s.navigator.Navigate(ctx, s.page, smoke.Target{URL: cmd.Arg})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Current URL: %s (status %d)", nav.URL, nav.Status), nil
	case "wait":
		r := smoke.Readiness{Selector: cmd.Arg, Timeout: s.readiness}
		if err := s.navigator.WaitReady(ctx, s.page, r); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is visible", cmd.Arg), nil
	case "check", "exact":
		res := s.verifier.Check(ctx, s.page, smoke.Expectation{Text: cmd.Arg, Exact: cmd.Name == "exact"})
		if res.Error != "" {
			return "", errors.New(res.Error)
		}
		return fmt.Sprintf("%s (%d)", smoke.DescribeResult(res), res.Count), nil
	case "click":
		if err := s.page.Click(ctx, browser.Query{Text: cmd.Arg}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Clicked on %q", cmd.Arg), nil
	case "shot":
		s.shots++
		name := cmd.Arg
		if name == "" {
			name = fmt.Sprintf("shell-%d", s.shots)
		}
		path, err := s.evidence.Capture(ctx, s.page, name, true)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("screenshot %q saved to ", name) + smoke.FileLink(path), nil
	case "quit", "exit":
		return "", ErrQuit
	}
	return helpText, nil
}
