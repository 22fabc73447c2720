package smoke

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
	"github.com/integrail/uismoke/pkg/browser/mocks"
)

var png = []byte("\x89PNG\r\n\x1a\nfake")

func matchQuery(text string) any {
	return mock.MatchedBy(func(q browser.Query) bool { return q.Text == text })
}

func newTestRunner(t *testing.T, driver browser.Driver, opts ...Option) *Runner {
	opts = append([]Option{
		WithLogger(zap.NewNop()),
		WithEvidenceDir(t.TempDir()),
		WithPollInterval(5 * time.Millisecond),
	}, opts...)
	return NewRunner(driver, opts...)
}

func fixedPage(t *testing.T, url string, states map[string]browser.Visibility) *mocks.Page {
	page := mocks.NewPage(t)
	page.On("Navigate", mock.Anything, url).Return(&browser.Navigation{URL: url, Status: 200}, nil).Maybe()
	for text, v := range states {
		page.On("Query", mock.Anything, matchQuery(text)).Return(&browser.Match{Visibility: v, Count: 1}, nil).Maybe()
	}
	page.On("Screenshot", mock.Anything, mock.Anything).Return(png, nil).Maybe()
	page.On("Close").Return(nil).Maybe()
	return page
}

func driverFor(t *testing.T, pages ...browser.Page) *mocks.Driver {
	d := mocks.NewDriver(t)
	for _, p := range pages {
		d.On("Open", mock.Anything, mock.Anything).Return(p, nil).Once()
	}
	return d
}

func TestRunAllVisible(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/scenes"
	page := fixedPage(t, url, map[string]browser.Visibility{
		"Library":       browser.Visible,
		"Audio & Music": browser.Visible,
	})

	r := newTestRunner(t, driverFor(t, page))
	suite := NewSuite("scenes", Target{URL: url, Headers: map[string]string{"x-df-client": "trusted"}}).
		WaitFor("text=Library", 10*time.Second).
		ExpectVisible("Library", "Audio & Music")

	report, err := r.Run(context.Background(), suite)
	Expect(err).To(BeNil())
	Expect(report.Passed).To(BeTrue())
	Expect(report.Error).To(BeEmpty())
	Expect(report.ReadinessTimedOut).To(BeFalse())
	Expect(report.Phase).To(Equal(PhaseDone))
	Expect(report.Phases).To(Equal([]Phase{PhaseIdle, PhaseNavigating, PhaseReady, PhaseChecking, PhaseReporting, PhaseDone}))
	Expect(report.Results).To(HaveLen(2))
	Expect(report.Results[0].State).To(Equal(StateVisible))
	Expect(report.Tally().Visible).To(Equal(2))
	Expect(report.Evidence).To(HaveLen(2))
	for _, path := range report.Evidence {
		Expect(path).To(BeAnExistingFile())
	}
}

func TestRunHiddenItemFails(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/scenes"
	page := fixedPage(t, url, map[string]browser.Visibility{
		"Library":       browser.Visible,
		"Audio & Music": browser.PresentHidden,
	})

	r := newTestRunner(t, driverFor(t, page))
	report, err := r.Run(context.Background(), NewSuite("", Target{URL: url}).ExpectVisible("Library", "Audio & Music"))
	Expect(err).To(BeNil())
	Expect(report.Suite).To(Equal("scenes"))
	Expect(report.Passed).To(BeFalse())
	Expect(report.Phase).To(Equal(PhaseDone))
	Expect(report.Results[1].State).To(Equal(StateHidden))
	Expect(report.Results[1].Passed).To(BeFalse())
	Expect(DescribeResult(report.Results[1])).To(Equal(`Found "Audio & Music" in DOM (1 times), but not visible`))
	Expect(AllPassed([]*RunReport{report})).To(BeFalse())
}

func TestRunNavigationFailure(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3999/"
	page := mocks.NewPage(t)
	page.On("Navigate", mock.Anything, url).Return(nil, errors.New("net::ERR_CONNECTION_REFUSED"))
	page.On("Screenshot", mock.Anything, false).Return(nil, errors.New("no document"))
	page.On("Close").Return(nil)

	r := newTestRunner(t, driverFor(t, page))
	report, err := r.Run(context.Background(), NewSuite("down", Target{URL: url}).ExpectVisible("Library"))
	Expect(err).To(BeNil())
	Expect(report.Passed).To(BeFalse())
	Expect(report.Error).To(ContainSubstring("ERR_CONNECTION_REFUSED"))
	Expect(report.Phases).To(Equal([]Phase{PhaseIdle, PhaseNavigating, PhaseFailureCaptured, PhaseDone}))
	Expect(report.Results).To(BeEmpty())
	Expect(report.Evidence).To(BeEmpty())
	page.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestRunOpenFailure(t *testing.T) {
	RegisterTestingT(t)

	d := mocks.NewDriver(t)
	d.On("Open", mock.Anything, mock.Anything).Return(nil, errors.New("chrome not found"))

	r := newTestRunner(t, d)
	report, err := r.Run(context.Background(), NewSuite("x", Target{URL: "http://localhost:1/"}).ExpectVisible("a"))
	Expect(err).To(BeNil())
	Expect(report.Passed).To(BeFalse())
	Expect(report.Error).To(ContainSubstring("chrome not found"))
	Expect(report.Phase).To(Equal(PhaseDone))
}

func TestRunReadinessTimeout(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/scenes"
	page := fixedPage(t, url, map[string]browser.Visibility{
		"Library": browser.Absent,
		"Scenes":  browser.Visible,
	})

	r := newTestRunner(t, driverFor(t, page))
	suite := NewSuite("scenes", Target{URL: url}).
		WaitFor("text=Library", 30*time.Millisecond).
		Expect(Expectation{Text: "Scenes"}, Expectation{Text: "Library", Require: RequireNone})

	report, err := r.Run(context.Background(), suite)
	Expect(err).To(BeNil())
	Expect(report.ReadinessTimedOut).To(BeTrue())
	Expect(report.Phases).To(ContainElement(PhaseReadinessTimedOut))
	Expect(report.Phases).NotTo(ContainElement(PhaseReady))
	Expect(report.Diagnostics).To(ContainElement(ContainSubstring(`"text=Library" did not become visible`)))
	Expect(report.Results).To(HaveLen(2))
	Expect(report.Passed).To(BeTrue())
}

func TestRunCheckErrorIsRecorded(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/"
	page := fixedPage(t, url, map[string]browser.Visibility{"Library": browser.Visible})
	page.On("Query", mock.Anything, matchQuery("Broken")).Return(nil, errors.New("execution context was destroyed"))

	r := newTestRunner(t, driverFor(t, page))
	report, err := r.Run(context.Background(), NewSuite("home", Target{URL: url}).ExpectVisible("Library", "Broken"))
	Expect(err).To(BeNil())
	Expect(report.Passed).To(BeFalse())
	Expect(report.Error).To(BeEmpty())
	Expect(report.Results[0].Passed).To(BeTrue())
	Expect(report.Results[1].State).To(Equal(StateAbsent))
	Expect(report.Results[1].Error).To(ContainSubstring("execution context was destroyed"))
}

func TestRunRedirectDiagnostic(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/scenes"
	page := mocks.NewPage(t)
	page.On("Navigate", mock.Anything, url).Return(&browser.Navigation{URL: "http://localhost:3000/login?next=/scenes", Status: 200}, nil)
	page.On("Query", mock.Anything, mock.Anything).Return(&browser.Match{Visibility: browser.Absent}, nil)
	page.On("Screenshot", mock.Anything, true).Return(png, nil)
	page.On("Close").Return(nil)

	r := newTestRunner(t, driverFor(t, page))
	report, err := r.Run(context.Background(), NewSuite("scenes", Target{URL: url}).ExpectVisible("Library"))
	Expect(err).To(BeNil())
	Expect(report.FinalURL).To(HavePrefix("http://localhost:3000/login"))
	Expect(report.Diagnostics).To(ContainElement(ContainSubstring("matched /login")))
	Expect(report.Passed).To(BeFalse())
}

func TestRunIsIdempotent(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/scenes"
	states := map[string]browser.Visibility{"Library": browser.Visible, "Audio & Music": browser.PresentHidden}
	dir := t.TempDir()
	r := newTestRunner(t, driverFor(t, fixedPage(t, url, states), fixedPage(t, url, states)), WithEvidenceDir(dir))

	first, err := r.Run(context.Background(), NewSuite("scenes", Target{URL: url}).ExpectVisible("Library", "Audio & Music"))
	Expect(err).To(BeNil())
	second, err := r.Run(context.Background(), NewSuite("scenes", Target{URL: url}).ExpectVisible("Library", "Audio & Music"))
	Expect(err).To(BeNil())

	Expect(second.Results).To(Equal(first.Results))
	Expect(second.Passed).To(Equal(first.Passed))
	Expect(second.Evidence).To(Equal(first.Evidence))
	files, err := os.ReadDir(dir)
	Expect(err).To(BeNil())
	Expect(files).To(HaveLen(2))
}

func TestRunInteractions(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/"
	page := fixedPage(t, url, map[string]browser.Visibility{"Library": browser.Visible})
	page.On("Click", mock.Anything, matchQuery("Library")).Return(nil)
	page.On("Click", mock.Anything, matchQuery("Missing")).Return(errors.New("no element matches"))

	dir := t.TempDir()
	r := newTestRunner(t, driverFor(t, page), WithEvidenceDir(dir))
	suite := NewSuite("home", Target{URL: url}).
		ExpectVisible("Library").
		Interact(Interaction{Click: "Library", Settle: time.Millisecond}, Interaction{Click: "Missing", Settle: time.Millisecond})

	report, err := r.Run(context.Background(), suite)
	Expect(err).To(BeNil())
	Expect(report.Passed).To(BeTrue())
	Expect(report.Evidence).To(ConsistOf(
		filepath.Join(dir, "initial.png"),
		filepath.Join(dir, "after-library.png"),
		filepath.Join(dir, "final.png"),
	))
	Expect(report.Diagnostics).To(ContainElement(ContainSubstring(`click on "Missing" failed`)))
}

func TestRunInvalidSuite(t *testing.T) {
	RegisterTestingT(t)

	r := newTestRunner(t, mocks.NewDriver(t))
	_, err := r.Run(context.Background(), NewSuite("empty", Target{URL: "http://localhost/"}))
	var usage *UsageError
	Expect(errors.As(err, &usage)).To(BeTrue())
}

func TestRunAllParallel(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/"
	states := map[string]browser.Visibility{"Library": browser.Visible, "Scenes": browser.Absent}
	d := driverFor(t, fixedPage(t, url, states), fixedPage(t, url, states), fixedPage(t, url, states))

	var mu sync.Mutex
	var lines []string
	dir := t.TempDir()
	r := newTestRunner(t, d, WithEvidenceDir(dir), WithMetrics(NewMetrics()), WithReporter(ReporterFunc(func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, msg)
	})))

	reports, err := r.RunAll(context.Background(), []*Suite{
		NewSuite("home", Target{URL: url}).ExpectVisible("Library"),
		NewSuite("home", Target{URL: url}).ExpectVisible("Scenes"),
		NewSuite("other", Target{URL: url}).Expect(Expectation{Text: "Scenes", Require: RequireAbsent}),
	}, 2)
	Expect(err).To(BeNil())
	Expect(reports).To(HaveLen(3))
	Expect(reports[0].Suite).To(Equal("home"))
	Expect(reports[1].Suite).To(Equal("home-2"))
	Expect(reports[0].Passed).To(BeTrue())
	Expect(reports[1].Passed).To(BeFalse())
	Expect(reports[2].Passed).To(BeTrue())
	Expect(AllPassed(reports)).To(BeFalse())
	Expect(filepath.Join(dir, "home-2", "final.png")).To(BeAnExistingFile())
	Expect(lines).NotTo(BeEmpty())
}

func TestRunInitialCheckpointAfterReadiness(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/"
	methods := func(page *mocks.Page) []string {
		return lo.Map(page.Calls, func(c mock.Call, _ int) string { return c.Method })
	}

	page := fixedPage(t, url, map[string]browser.Visibility{"Library": browser.Visible})
	dir := t.TempDir()
	report, err := newTestRunner(t, driverFor(t, page), WithEvidenceDir(dir)).
		Run(context.Background(), NewSuite("home", Target{URL: url}).WaitFor("text=Library", time.Second).ExpectVisible("Library"))
	Expect(err).To(BeNil())
	Expect(report.Evidence[0]).To(Equal(filepath.Join(dir, "initial.png")))
	calls := methods(page)
	Expect(lo.IndexOf(calls, "Query")).To(BeNumerically("<", lo.IndexOf(calls, "Screenshot")))

	// a timed out wait still gets its initial screenshot
	page = fixedPage(t, url, map[string]browser.Visibility{"Library": browser.Absent})
	report, err = newTestRunner(t, driverFor(t, page), WithEvidenceDir(dir)).
		Run(context.Background(), NewSuite("home", Target{URL: url}).WaitFor("text=Library", 20*time.Millisecond).ExpectVisible("Library"))
	Expect(err).To(BeNil())
	Expect(report.ReadinessTimedOut).To(BeTrue())
	Expect(report.Evidence).To(ContainElement(filepath.Join(dir, "initial.png")))
}

func TestUniqueNames(t *testing.T) {
	RegisterTestingT(t)

	suites := lo.Map([]string{"a", "a", "a-2", "Studio", "studio", "studio"}, func(name string, _ int) *Suite {
		return NewSuite(name, Target{URL: "http://localhost/"})
	})
	uniqueNames(suites)

	names := lo.Map(suites, func(s *Suite, _ int) string { return s.Name })
	Expect(names).To(Equal([]string{"a", "a-2", "a-2-2", "Studio", "studio-2", "studio-3"}))
	dirs := lo.Map(names, func(name string, _ int) string { return dirName(name) })
	Expect(lo.Uniq(dirs)).To(HaveLen(len(dirs)))
}

func TestRunCancelled(t *testing.T) {
	RegisterTestingT(t)

	const url = "http://localhost:3000/"
	page := fixedPage(t, url, map[string]browser.Visibility{"Library": browser.Absent})

	ctx, cancel := context.WithCancel(context.Background())
	r := newTestRunner(t, driverFor(t, page), WithReporter(ReporterFunc(func(msg string) {
		if msg == `Waiting for selector "text=Library" within 1m0s...` {
			cancel()
		}
	})))
	report, err := r.Run(ctx, NewSuite("home", Target{URL: url}).WaitFor("text=Library", time.Minute).ExpectVisible("Library"))
	Expect(err).To(BeNil())
	Expect(report.Passed).To(BeFalse())
	Expect(report.Error).To(ContainSubstring("context canceled"))
	Expect(report.Phase).To(Equal(PhaseDone))
	Expect(report.Phases).To(ContainElement(PhaseFailureCaptured))
}
