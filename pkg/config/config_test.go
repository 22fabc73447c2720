package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	"github.com/spf13/pflag"

	"github.com/integrail/uismoke/pkg/smoke"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	return path
}

func TestLoadDefaults(t *testing.T) {
	RegisterTestingT(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("BAAS_URL", "")
	t.Chdir(t.TempDir())

	s, err := Load(LoadOptions{})
	Expect(err).To(BeNil())
	Expect(s.Browser.Backend).To(Equal(BackendRod))
	Expect(s.Browser.Headless).To(BeTrue())
	Expect(s.Browser.NavigationTimeout).To(Equal(60 * time.Second))
	Expect(s.Browser.PollInterval).To(Equal(250 * time.Millisecond))
	Expect(s.Output.Dir).To(Equal("verification"))
	Expect(s.Baas.MessageTimeout).To(Equal("60s"))
}

func TestLoadPrecedence(t *testing.T) {
	RegisterTestingT(t)
	cfg := writeFile(t, "uismoke.yaml", `
browser:
  backend: static
  navigation_timeout: 30s
baas:
  url: https://baas.example.com
  api_key: ${TEST_BAAS_KEY}
output:
  dir: shots
`)
	t.Setenv("TEST_BAAS_KEY", "from-file")
	t.Setenv("UISMOKE_OUTPUT_DIR", "from-env")
	t.Setenv("BAAS_URL", "")
	t.Setenv("UISMOKE_BAAS_URL", "")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("backend", "rod", "")
	flags.Duration("poll", 0, "")
	Expect(flags.Parse([]string{"--poll", "1s"})).To(Succeed())

	s, err := Load(LoadOptions{
		ConfigFile: cfg,
		Flags:      flags,
		FlagKeys:   map[string]string{"backend": "browser.backend", "poll": "browser.poll_interval", "missing": "llm.model"},
	})
	Expect(err).To(BeNil())
	Expect(s.Browser.Backend).To(Equal(BackendStatic), "unchanged flag must not override the file")
	Expect(s.Browser.PollInterval).To(Equal(time.Second))
	Expect(s.Browser.NavigationTimeout).To(Equal(30 * time.Second))
	Expect(s.Baas.Url).To(Equal("https://baas.example.com"))
	Expect(s.Baas.ApiKey).To(Equal("from-file"))
	Expect(s.Output.Dir).To(Equal("from-env"))
}

func TestLoadBaasEnv(t *testing.T) {
	RegisterTestingT(t)
	t.Setenv("BAAS_URL", "http://localhost:8080")
	t.Setenv("BAAS_API_KEY", "secret")
	t.Setenv("UISMOKE_BROWSER_BACKEND", "baas")

	s, err := Load(LoadOptions{ConfigFile: writeFile(t, "empty.yaml", "{}")})
	Expect(err).To(BeNil())
	Expect(s.Browser.Backend).To(Equal(BackendBaas))
	Expect(s.Baas.Url).To(Equal("http://localhost:8080"))
	Expect(s.Baas.ApiKey).To(Equal("secret"))
}

func TestLoadInvalid(t *testing.T) {
	RegisterTestingT(t)

	_, err := Load(LoadOptions{ConfigFile: writeFile(t, "bad.yaml", "browser:\n  backend: selenium\n")})
	Expect(err).To(MatchError(ContainSubstring(`unknown browser backend "selenium"`)))

	_, err = Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	Expect(err).To(MatchError(ContainSubstring("failed to read config")))
}

const scenesSuite = `
target:
  url: http://localhost:3000/scenes
  headers:
    x-df-client: desktop
  viewport: {width: 1920, height: 1080}
readiness:
  selector: text=Library
  timeout: 5s
expectations:
  - Library
  - Sound Effects
  - text: FLUX.1 [redux]
    require: present
  - text: Upload
    exact: true
    require: absent
interactions:
  - click: Video Generation
checkpoints:
  final: Final State
`

func TestLoadSuite(t *testing.T) {
	RegisterTestingT(t)

	suites, err := LoadSuite(writeFile(t, "scenes.yaml", scenesSuite))
	Expect(err).To(BeNil())
	Expect(suites).To(HaveLen(1))
	s := suites[0]
	Expect(s.Name).To(Equal("scenes"))
	Expect(s.Target.Headers).To(Equal(map[string]string{"x-df-client": "desktop"}))
	Expect(*s.Target.Viewport).To(Equal(smoke.Viewport{Width: 1920, Height: 1080}))
	Expect(s.Readiness).To(Equal(smoke.Readiness{Selector: "text=Library", Timeout: 5 * time.Second}))
	Expect(s.Expectations).To(Equal([]smoke.Expectation{
		{Text: "Library", Require: smoke.RequireVisible},
		{Text: "Sound Effects", Require: smoke.RequireVisible},
		{Text: "FLUX.1 [redux]", Require: smoke.RequirePresent},
		{Text: "Upload", Exact: true, Require: smoke.RequireAbsent},
	}))
	Expect(s.Interactions).To(Equal([]smoke.Interaction{
		{Click: "Video Generation", Settle: time.Second, Checkpoint: "after-Video Generation"},
	}))
	Expect(s.Checkpoints.Final).To(Equal("Final State"))
	Expect(s.Checkpoints.Initial).To(Equal("initial"))
	Expect(lo.FromPtr(s.Checkpoints.FullPage)).To(BeTrue())
}

func TestLoadSuiteMultipleDocuments(t *testing.T) {
	RegisterTestingT(t)

	suites, err := LoadSuite(writeFile(t, "studio.yaml", `
target: {url: "http://localhost:3000/"}
expectations: [Studio]
---
name: categories
target: {url: "http://localhost:3000/"}
expectations: [Image Generation, Video Generation]
---
target: {url: "http://localhost:3000/v2"}
readiness: {delay: 3s}
expectations: [Studio]
`))
	Expect(err).To(BeNil())
	Expect(lo.Map(suites, func(s *smoke.Suite, _ int) string { return s.Name })).To(Equal([]string{"studio-1", "categories", "studio-3"}))
	Expect(suites[2].Readiness.Delay).To(Equal(3 * time.Second))
}

func TestLoadSuiteErrors(t *testing.T) {
	RegisterTestingT(t)

	for name, content := range map[string]string{
		"unknown field":   "target: {url: http://localhost}\nexpectations: [a]\nretries: 3\n",
		"no expectations": "target: {url: http://localhost}\n",
		"both readiness":  "target: {url: http://localhost}\nexpectations: [a]\nreadiness: {selector: '#x', delay: 1s}\n",
		"bad requirement": "target: {url: http://localhost}\nexpectations: [{text: a, require: maybe}]\n",
		"empty file":      "",
		"missing url":     "expectations: [a]\n",
	} {
		_, err := LoadSuite(writeFile(t, "suite.yaml", content))
		Expect(err).NotTo(BeNil(), name)
	}

	_, err := LoadSuites([]string{filepath.Join(t.TempDir(), "none.yaml")})
	Expect(err).To(MatchError(ContainSubstring("failed to read suite file")))
}
