// Package config loads uismoke settings and suite files.
//
// Settings precedence, highest first: explicitly set flags, environment
// (UISMOKE_*, plus BAAS_URL and BAAS_API_KEY), the config file given with
// --config or else ./.uismoke.yaml merged over ~/.config/uismoke/config.yaml,
// built-in defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/integrail/uismoke/pkg/client"
	"github.com/integrail/uismoke/pkg/llm"
	"github.com/integrail/uismoke/pkg/smoke"
)

const (
	BackendRod      = "rod"
	BackendChromedp = "chromedp"
	BackendBaas     = "baas"
	BackendStatic   = "static"
)

var Backends = []string{BackendRod, BackendChromedp, BackendBaas, BackendStatic}

type Settings struct {
	Browser BrowserSettings `mapstructure:"browser"`
	Baas    client.Config   `mapstructure:"baas"`
	Output  OutputSettings  `mapstructure:"output"`
	LLM     llm.Config      `mapstructure:"llm"`
}

type BrowserSettings struct {
	Backend           string        `mapstructure:"backend"`
	Bin               string        `mapstructure:"bin"`
	Headless          bool          `mapstructure:"headless"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	ControlURL        string        `mapstructure:"control_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	CheckTimeout      time.Duration `mapstructure:"check_timeout"`
}

type OutputSettings struct {
	Dir     string `mapstructure:"dir"`
	Report  string `mapstructure:"report"`
	Metrics string `mapstructure:"metrics"`
}

type LoadOptions struct {
	// ConfigFile is read instead of the default locations when set.
	ConfigFile string
	Flags      *pflag.FlagSet
	// FlagKeys maps flag names to settings keys, e.g. "backend" -> "browser.backend".
	FlagKeys map[string]string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("browser.backend", BackendRod)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.navigation_timeout", smoke.DefaultNavigationTimeout)
	v.SetDefault("browser.poll_interval", smoke.DefaultPollInterval)
	v.SetDefault("browser.check_timeout", smoke.DefaultCheckTimeout)

	v.SetDefault("baas.url", "https://baas.integrail.ai")
	v.SetDefault("baas.api_key", "")
	v.SetDefault("baas.timeout", client.DefaultSessionTimeout)
	v.SetDefault("baas.message_timeout", client.DefaultMessageTimeout)
	v.SetDefault("baas.use_proxy", false)
	v.SetDefault("baas.local_debug", false)

	v.SetDefault("output.dir", smoke.DefaultEvidenceDir)
	v.SetDefault("output.report", "")
	v.SetDefault("output.metrics", "")

	v.SetDefault("llm.provider", llm.ProviderOpenAI)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.org", "")
}

func Load(opts LoadOptions) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", opts.ConfigFile)
		}
	} else if err := readDefaultConfigs(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("UISMOKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("baas.url", "UISMOKE_BAAS_URL", "BAAS_URL")
	_ = v.BindEnv("baas.api_key", "UISMOKE_BAAS_API_KEY", "BAAS_API_KEY")
	_ = v.BindEnv("llm.api_key", "UISMOKE_LLM_API_KEY", "OPENAI_API_KEY")

	if opts.Flags != nil {
		for name, key := range opts.FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "failed to bind flag --%s", name)
				}
			}
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrapf(err, "failed to decode settings")
	}
	s.Baas.ApiKey = os.ExpandEnv(s.Baas.ApiKey)
	s.LLM.APIKey = os.ExpandEnv(s.LLM.APIKey)
	return s, s.Validate()
}

func readDefaultConfigs(v *viper.Viper) error {
	if dir, err := os.UserConfigDir(); err == nil {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(dir, "uismoke"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return errors.Wrapf(err, "failed to read user config")
			}
		}
	}
	project := ".uismoke.yaml"
	if _, err := os.Stat(project); err != nil {
		return nil
	}
	pv := viper.New()
	pv.SetConfigFile(project)
	if err := pv.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read %s", project)
	}
	return errors.Wrapf(v.MergeConfigMap(pv.AllSettings()), "failed to merge %s", project)
}

func (s *Settings) Validate() error {
	if !lo.Contains(Backends, s.Browser.Backend) {
		return errors.Errorf("unknown browser backend %q (%s)", s.Browser.Backend, strings.Join(Backends, ", "))
	}
	if s.Browser.NavigationTimeout < 0 || s.Browser.PollInterval < 0 || s.Browser.CheckTimeout < 0 {
		return errors.New("browser timeouts must not be negative")
	}
	if s.Browser.Backend == BackendBaas && s.Baas.Url == "" {
		return errors.New("baas backend requires baas.url")
	}
	return nil
}
