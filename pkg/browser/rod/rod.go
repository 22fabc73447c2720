package rod

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
)

// Driver launches Chrome lazily on the first Open and shares it between pages.
type Driver struct {
	opts browser.LaunchOptions
	log  *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func NewDriver(opts browser.LaunchOptions, log *zap.Logger) *Driver {
	return &Driver{opts: opts, log: log}
}

func (d *Driver) connect() (*rod.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		return d.browser, nil
	}

	controlURL := d.opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(d.opts.Headless).Set(flags.Flag("disable-gpu"))
		if d.opts.NoSandbox {
			l = l.NoSandbox(true)
		}
		if bin := d.opts.Bin; bin != "" {
			l = l.Bin(bin)
		} else if bin, ok := launcher.LookPath(); ok {
			l = l.Bin(bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to launch chrome")
		}
		d.launcher = l
		controlURL = u
		d.log.Debug("launched chrome", zap.String("controlURL", u), zap.Bool("headless", d.opts.Headless))
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		d.killLauncher()
		return nil, errors.Wrapf(err, "failed to connect to chrome at %s", controlURL)
	}
	d.browser = b
	return b, nil
}

// Open creates a page in a fresh incognito context, so cookies and storage
// never leak between runs.
func (d *Driver) Open(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	b, err := d.connect()
	if err != nil {
		return nil, err
	}
	incognito, err := b.Incognito()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create incognito context")
	}
	p, err := incognito.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, errors.Wrapf(err, "failed to create page")
	}
	p = p.Context(context.Background())

	if len(opts.Headers) > 0 {
		dict := lo.FlatMap(lo.Keys(opts.Headers), func(k string, _ int) []string { return []string{k, opts.Headers[k]} })
		if _, err := p.SetExtraHeaders(dict); err != nil {
			_ = incognito.Close()
			return nil, errors.Wrapf(err, "failed to set extra headers")
		}
	}
	if opts.Width > 0 && opts.Height > 0 {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			_ = incognito.Close()
			return nil, errors.Wrapf(err, "failed to set viewport")
		}
	}
	return &page{page: p, incognito: incognito, log: d.log}, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	d.killLauncher()
	return err
}

func (d *Driver) killLauncher() {
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
		d.launcher = nil
	}
}

type page struct {
	page      *rod.Page
	incognito *rod.Browser
	log       *zap.Logger
}

func (p *page) Navigate(ctx context.Context, url string) (*browser.Navigation, error) {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return nil, err
	}
	if err := pg.WaitLoad(); err != nil {
		return nil, errors.Wrapf(err, "page did not finish loading")
	}
	info, err := pg.Info()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read page info")
	}
	nav := &browser.Navigation{URL: info.URL}
	if res, err := pg.Eval(browser.StatusScript); err != nil {
		p.log.Debug("response status unavailable", zap.Error(err))
	} else {
		nav.Status = res.Value.Int()
	}
	return nav, nil
}

func (p *page) probe(ctx context.Context, q browser.Query, action string) (*browser.ProbeResult, error) {
	res, err := p.page.Context(ctx).Evaluate(rod.Eval(browser.ProbeScript, browser.ProbeArgs(q, action)...))
	if err != nil {
		return nil, errors.Wrapf(err, "probe for %s failed", q)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read probe result")
	}
	var out browser.ProbeResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrapf(err, "failed to decode probe result %s", raw)
	}
	return &out, nil
}

func (p *page) Query(ctx context.Context, q browser.Query) (*browser.Match, error) {
	res, err := p.probe(ctx, q, browser.ActionQuery)
	if err != nil {
		return nil, err
	}
	return res.Match()
}

func (p *page) Click(ctx context.Context, q browser.Query) error {
	res, err := p.probe(ctx, q, browser.ActionClick)
	if err != nil {
		return err
	}
	if !res.Clicked {
		return errors.Errorf("no element matches %s", q)
	}
	return nil
}

func (p *page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	img, err := p.page.Context(ctx).Screenshot(fullPage, nil)
	return img, errors.Wrapf(err, "failed to take screenshot")
}

func (p *page) Close() error {
	err := p.page.Close()
	if cerr := p.incognito.Close(); err == nil {
		err = cerr
	}
	return err
}
