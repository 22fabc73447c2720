package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser/mocks"
)

func sampleReport() *RunReport {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &RunReport{
		ID:         "run-1",
		Suite:      "scenes",
		Target:     "http://localhost:3000/scenes",
		FinalURL:   "http://localhost:3000/scenes",
		Status:     200,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Phase:      PhaseDone,
		Results: []CheckResult{
			{Expectation: Expectation{Text: "Library"}, State: StateVisible, Count: 1, Passed: true},
			{Expectation: Expectation{Text: "Audio & Music"}, State: StateHidden, Count: 3},
			{Expectation: Expectation{Text: "Upload", Require: RequireAbsent}, State: StateAbsent, Passed: true},
		},
		Evidence: []string{"verification/final.png"},
	}
}

func TestDescribeResult(t *testing.T) {
	RegisterTestingT(t)

	r := sampleReport()
	Expect(DescribeResult(r.Results[0])).To(Equal("Found: Library"))
	Expect(DescribeResult(r.Results[1])).To(Equal(`Found "Audio & Music" in DOM (3 times), but not visible`))
	Expect(DescribeResult(r.Results[2])).To(Equal(`"Upload" NOT found [require absent]`))
	Expect(r.Tally()).To(Equal(Tally{Total: 3, Visible: 1, Hidden: 1, Absent: 1, Failed: 1}))
	Expect(r.Tally().String()).To(Equal("1/3 visible, 1 hidden, 1 absent, 1 failed"))
	Expect(r.Duration()).To(Equal(1500 * time.Millisecond))
}

func TestAllPassed(t *testing.T) {
	RegisterTestingT(t)

	Expect(AllPassed(nil)).To(BeFalse())
	Expect(AllPassed([]*RunReport{{Passed: true}, {Passed: true}})).To(BeTrue())
	Expect(AllPassed([]*RunReport{{Passed: true}, nil})).To(BeFalse())
}

func TestWriteJSON(t *testing.T) {
	RegisterTestingT(t)

	path := filepath.Join(t.TempDir(), "out", "report.json")
	Expect(WriteJSON(path, []*RunReport{sampleReport()})).To(Succeed())

	data, err := os.ReadFile(path)
	Expect(err).To(BeNil())
	var doc struct {
		Passed  bool         `json:"passed"`
		Reports []*RunReport `json:"reports"`
	}
	Expect(json.Unmarshal(data, &doc)).To(Succeed())
	Expect(doc.Passed).To(BeFalse())
	Expect(doc.Reports[0].Results[1].State).To(Equal(StateHidden))
	Expect(string(data)).To(ContainSubstring(`"state": "present-hidden"`))
}

func TestConsolePrintReport(t *testing.T) {
	RegisterTestingT(t)

	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.ForSuite("scenes").Report("Navigating to http://localhost:3000/scenes...")
	c.PrintReport(sampleReport())

	out := buf.String()
	Expect(out).To(ContainSubstring("[scenes] Navigating to"))
	Expect(out).To(ContainSubstring("scenes: http://localhost:3000/scenes"))
	Expect(out).To(ContainSubstring("Found: Library"))
	Expect(out).To(ContainSubstring("1/3 visible, 1 hidden, 1 absent, 1 failed in 1.5s"))
	Expect(out).To(ContainSubstring("verification/final.png"))
	Expect(strings.TrimSpace(out)).To(HaveSuffix("FAIL"))
}

func TestMetricsObserve(t *testing.T) {
	RegisterTestingT(t)

	m := NewMetrics()
	m.Observe(sampleReport())

	Expect(testutil.ToFloat64(m.checks.WithLabelValues("scenes", "visible"))).To(Equal(1.0))
	Expect(testutil.ToFloat64(m.checks.WithLabelValues("scenes", "present-hidden"))).To(Equal(1.0))
	Expect(testutil.ToFloat64(m.passed.WithLabelValues("scenes"))).To(Equal(0.0))
	Expect(testutil.ToFloat64(m.duration.WithLabelValues("scenes"))).To(Equal(1.5))

	path := filepath.Join(t.TempDir(), "uismoke.prom")
	Expect(m.WriteTextfile(path)).To(Succeed())
	data, err := os.ReadFile(path)
	Expect(err).To(BeNil())
	Expect(string(data)).To(ContainSubstring(`uismoke_checks_total{state="absent",suite="scenes"} 1`))
}

func TestEvidenceOverwrite(t *testing.T) {
	RegisterTestingT(t)

	page := mocks.NewPage(t)
	page.On("Screenshot", mock.Anything, true).Return([]byte("first"), nil).Once()
	page.On("Screenshot", mock.Anything, true).Return([]byte("second"), nil).Once()

	c := NewCollector(t.TempDir(), zap.NewNop())
	first, err := c.Capture(context.Background(), page, "Final State", true)
	Expect(err).To(BeNil())
	second, err := c.Capture(context.Background(), page, "Final State", true)
	Expect(err).To(BeNil())

	Expect(second).To(Equal(first))
	Expect(filepath.Base(first)).To(Equal("final-state.png"))
	data, err := os.ReadFile(first)
	Expect(err).To(BeNil())
	Expect(string(data)).To(Equal("second"))
	files, err := os.ReadDir(c.Dir)
	Expect(err).To(BeNil())
	Expect(files).To(HaveLen(1))
}

func TestEvidenceCaptureError(t *testing.T) {
	RegisterTestingT(t)

	page := mocks.NewPage(t)
	page.On("Screenshot", mock.Anything, false).Return(nil, errors.New("target closed"))

	c := NewCollector(t.TempDir(), zap.NewNop())
	_, err := c.Capture(context.Background(), page, "initial", false)
	var captureErr *EvidenceCaptureError
	Expect(errors.As(err, &captureErr)).To(BeTrue())
	Expect(captureErr.Checkpoint).To(Equal("initial"))
	Expect(c.CaptureFailure(context.Background(), page, "failure")).To(BeEmpty())
	Expect(c.CaptureFailure(context.Background(), nil, "failure")).To(BeEmpty())
}

func TestCheckpointFile(t *testing.T) {
	RegisterTestingT(t)

	Expect(CheckpointFile("after-Audio & Music")).To(Equal("after-audio-music.png"))
	Expect(CheckpointFile("../../etc")).To(Equal("etc.png"))
	Expect(CheckpointFile("///")).To(Equal("checkpoint.png"))
}
