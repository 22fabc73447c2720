package rod

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
	"github.com/integrail/uismoke/pkg/smoke"
)

const scenesPage = `<!doctype html>
<html><body style="margin:0">
<div style="display:flex;height:600px">
  <nav id="sidebar" style="width:200px;height:600px;overflow-y:auto">
    <div style="height:700px">Library</div>
    <div style="height:400px">Sound Effects</div>
  </nav>
  <main>
    <h1>Scenes</h1>
    <p>Image <span>Generation</span></p>
    <div style="display:none">Audio &amp; Music</div>
    <button onclick="document.getElementById('out').textContent='Opened Library'">Open</button>
    <p id="out"></p>
  </main>
</div>
</body></html>`

func requireChrome(t *testing.T) {
	if os.Getenv("GITHUB_RUN_ID") != "" {
		t.Skip("Skipping real browser test in CI")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("Chrome not installed")
	}
}

func newServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-df-client") != "desktop" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/login" {
			_, _ = fmt.Fprint(w, "<html><body>Sign in</body></html>")
			return
		}
		_, _ = fmt.Fprint(w, scenesPage)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRodDriver(t *testing.T) {
	requireChrome(t)
	RegisterTestingT(t)

	srv := newServer(t)
	d := NewDriver(browser.LaunchOptions{Headless: true, NoSandbox: true}, zap.NewNop())
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	p, err := d.Open(ctx, browser.PageOptions{Headers: map[string]string{"x-df-client": "desktop"}, Width: 1280, Height: 600})
	Expect(err).To(BeNil())
	defer p.Close()

	nav, err := p.Navigate(ctx, srv.URL+"/scenes")
	Expect(err).To(BeNil())
	Expect(nav.URL).To(Equal(srv.URL + "/scenes"))

	m, err := p.Query(ctx, browser.Query{Text: "Library"})
	Expect(err).To(BeNil())
	Expect(m.Visibility).To(Equal(browser.Visible))

	m, err = p.Query(ctx, browser.Query{Text: "Audio & Music"})
	Expect(err).To(BeNil())
	Expect(m.Visibility).To(Equal(browser.PresentHidden))

	// split across inline children
	m, err = p.Query(ctx, browser.Query{Text: "image generation"})
	Expect(err).To(BeNil())
	Expect(m.Visibility).To(Equal(browser.Visible))
	Expect(m.Count).To(Equal(1))

	// scrolled out of the sidebar's visible area
	m, err = p.Query(ctx, browser.Query{Text: "Sound Effects"})
	Expect(err).To(BeNil())
	Expect(m.Visibility).To(Equal(browser.PresentHidden))
	Expect(m.Count).To(Equal(1))

	m, err = p.Query(ctx, browser.Query{Text: "Upload"})
	Expect(err).To(BeNil())
	Expect(m.Visibility).To(Equal(browser.Absent))

	Expect(p.Click(ctx, browser.Query{Text: "Open", Exact: true})).To(Succeed())
	m, err = p.Query(ctx, browser.Query{Selector: "#out"})
	Expect(err).To(BeNil())
	Expect(m.Visibility).To(Equal(browser.Visible))

	img, err := p.Screenshot(ctx, true)
	Expect(err).To(BeNil())
	Expect(img[:4]).To(Equal([]byte("\x89PNG")))
}

func TestRodRunner(t *testing.T) {
	requireChrome(t)
	RegisterTestingT(t)

	srv := newServer(t)
	d := NewDriver(browser.LaunchOptions{Headless: true, NoSandbox: true}, zap.NewNop())
	defer d.Close()

	r := smoke.NewRunner(d, smoke.WithEvidenceDir(t.TempDir()))

	report, err := r.Run(context.Background(), smoke.NewSuite("scenes", smoke.Target{
		URL:     srv.URL + "/scenes",
		Headers: map[string]string{"x-df-client": "desktop"},
	}).WaitFor("text=Library", 10*time.Second).ExpectVisible("Library", "Scenes"))
	Expect(err).To(BeNil())
	Expect(report.Passed).To(BeTrue())
	Expect(report.Evidence).To(HaveLen(2))

	// without the header the app redirects to its login page
	report, err = r.Run(context.Background(), smoke.NewSuite("gated", smoke.Target{URL: srv.URL + "/scenes"}).
		WaitFor("text=Library", 500*time.Millisecond).
		ExpectVisible("Library"))
	Expect(err).To(BeNil())
	Expect(report.Passed).To(BeFalse())
	Expect(report.ReadinessTimedOut).To(BeTrue())
	Expect(report.Diagnostics).To(ContainElement(ContainSubstring("matched /login")))
}
