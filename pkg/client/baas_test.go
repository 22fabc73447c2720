package client

import (
	"context"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/client/baastest"
	"github.com/integrail/uismoke/pkg/client/dto"
)

type testReporter struct {
	lines []string
}

func (r *testReporter) Report(msg string) {
	r.lines = append(r.lines, msg)
}

func TestDecodeMessages(t *testing.T) {
	RegisterTestingT(t)

	objects, err := decodeMessages([]byte(`{"requestID":"1"}` + "\n" + `{"requestID":"2"}{"requestID":"3"}`))
	Expect(err).To(BeNil())
	Expect(lo.Map(objects, func(m dto.BrowserMessageOut, _ int) string { return m.RequestID })).To(Equal([]string{"1", "2", "3"}))

	_, err = decodeMessages([]byte(`{"requestID":`))
	Expect(err).NotTo(BeNil())
}

func fakeService(t *testing.T) *baastest.Server {
	return baastest.NewServer(t, func(program string) dto.BrowserMessageOut {
		switch {
		case strings.HasPrefix(program, "navigateStatus("):
			return dto.BrowserMessageOut{Value: 200.0}
		case program == "getURL()":
			return dto.BrowserMessageOut{Value: "http://localhost:3000/scenes"}
		case strings.HasPrefix(program, "isElementPresent("):
			return dto.BrowserMessageOut{Value: strings.Contains(program, "Library")}
		case strings.HasPrefix(program, "takeScreenshot("):
			return dto.BrowserMessageOut{Screenshots: map[string][]byte{"final": []byte("png")}}
		case strings.HasPrefix(program, "waitVisible("):
			return dto.BrowserMessageOut{Error: "operation timed out"}
		}
		return dto.BrowserMessageOut{}
	})
}

func newTestProgram(t *testing.T, srv *baastest.Server, opts ...Option) (Program, *testReporter) {
	reporter := &testReporter{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p, err := NewProgram(ctx, Config{Url: srv.URL, ApiKey: baastest.APIKey, MessageTimeout: "5s"}, reporter,
		append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	Expect(err).To(BeNil())
	return p, reporter
}

func TestProgramSession(t *testing.T) {
	RegisterTestingT(t)

	srv := fakeService(t)
	p, reporter := newTestProgram(t, srv, WithViewport(1920, 1080))
	ctx := context.Background()

	Expect(p.SessionID()).NotTo(BeEmpty())
	Expect(reporter.lines).To(ContainElement("Got sessionID: " + p.SessionID()))
	Expect(srv.Starts()).To(HaveLen(1))
	Expect(*srv.Starts()[0].Browser.Width).To(Equal(1920))

	status, err := p.NavigateStatus(ctx, "http://localhost:3000/scenes")
	Expect(err).To(BeNil())
	Expect(status).To(Equal(200))

	url, err := p.GetURL(ctx)
	Expect(err).To(BeNil())
	Expect(url).To(Equal("http://localhost:3000/scenes"))

	present, err := p.IsElementPresent(ctx, "//*[text()='Library']")
	Expect(err).To(BeNil())
	Expect(present).To(BeTrue())

	img, err := p.TakeScreenshot(ctx, "final")
	Expect(err).To(BeNil())
	Expect(img).To(Equal([]byte("png")))

	_, err = p.TakeScreenshot(ctx, "missing")
	Expect(err).To(MatchError(ContainSubstring("wasn't returned")))

	err = p.WaitVisible(ctx, "#menu", WithTimeout("1s"))
	var progErr *ProgramError
	Expect(errors.As(err, &progErr)).To(BeTrue())
	Expect(progErr.Message).To(Equal("operation timed out"))

	Expect(p.Close()).To(Succeed())
	Expect(srv.OpenSessions()).To(Equal(0))
	Expect(srv.Programs()).To(ContainElement(`waitVisible("#menu", {"timeout":"1s"})`))
}

func TestProgramUnauthorized(t *testing.T) {
	RegisterTestingT(t)

	srv := fakeService(t)
	_, err := NewProgram(context.Background(), Config{Url: srv.URL, ApiKey: "wrong"}, &testReporter{})
	Expect(err).To(MatchError(ContainSubstring("status code 401")))
}

func TestProgramStartCancelled(t *testing.T) {
	RegisterTestingT(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProgram(ctx, Config{Url: "http://127.0.0.1:1", ApiKey: baastest.APIKey}, &testReporter{})
	Expect(err).NotTo(BeNil())
}
