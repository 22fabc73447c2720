package main

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/integrail/uismoke/pkg/browser"
	"github.com/integrail/uismoke/pkg/browser/baas"
	"github.com/integrail/uismoke/pkg/browser/cdp"
	"github.com/integrail/uismoke/pkg/browser/rod"
	"github.com/integrail/uismoke/pkg/browser/static"
	"github.com/integrail/uismoke/pkg/client"
	"github.com/integrail/uismoke/pkg/client/dto"
	"github.com/integrail/uismoke/pkg/config"
	"github.com/integrail/uismoke/pkg/smoke"
	"github.com/integrail/uismoke/pkg/util"
)

func (o *rootOptions) newDriver() (browser.Driver, error) {
	s := o.settings.Browser
	launch := browser.LaunchOptions{
		Bin:        s.Bin,
		Headless:   s.Headless,
		NoSandbox:  s.NoSandbox,
		ControlURL: s.ControlURL,
	}
	switch s.Backend {
	case config.BackendRod:
		return rod.NewDriver(launch, o.log), nil
	case config.BackendChromedp:
		return cdp.NewDriver(launch, o.log), nil
	case config.BackendStatic:
		return static.NewDriver(s.NavigationTimeout, o.log), nil
	case config.BackendBaas:
		return o.newBaasDriver()
	}
	return nil, smoke.NewUsageError(errors.Errorf("unknown browser backend %q", s.Backend))
}

func (o *rootOptions) newBaasDriver() (browser.Driver, error) {
	cfg := o.settings.Baas
	secrets, err := util.SliceToMap(append(cfg.Secrets, o.secrets...))
	if err != nil {
		return nil, smoke.NewUsageError(errors.Wrapf(err, "invalid --secret"))
	}
	values, err := util.SliceToMap(append(cfg.Values, o.values...))
	if err != nil {
		return nil, smoke.NewUsageError(errors.Wrapf(err, "invalid --value"))
	}
	cookies, err := util.SliceToMap(o.cookies)
	if err != nil {
		return nil, smoke.NewUsageError(errors.Wrapf(err, "invalid --cookie"))
	}
	cfg.Cookies = append(cfg.Cookies, lo.MapToSlice(cookies, func(k, v string) dto.BrowserCookie {
		return dto.BrowserCookie{Name: k, Value: v, Domain: o.cookieDomain, Path: "/"}
	})...)
	return baas.NewDriver(cfg, o.log, client.WithSecrets(secrets), client.WithValues(values)), nil
}
