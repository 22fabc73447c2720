package cdp

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
)

// Driver runs pages on a chromedp allocator. The browser starts on the first
// Open and lives until Close.
type Driver struct {
	opts browser.LaunchOptions
	log  *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

func NewDriver(opts browser.LaunchOptions, log *zap.Logger) *Driver {
	return &Driver{opts: opts, log: log}
}

func (d *Driver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if d.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if d.opts.Bin != "" {
		opts = append(opts, chromedp.ExecPath(d.opts.Bin))
	}
	return opts
}

func (d *Driver) start() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx != nil {
		return d.browserCtx, nil
	}

	var allocCtx context.Context
	if d.opts.ControlURL != "" {
		allocCtx, d.cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), d.opts.ControlURL)
	} else {
		allocCtx, d.cancelAlloc = chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	}
	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(d.log.Sugar().Debugf))
	// the first Run starts the browser; it must not carry a timeout
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		d.cancelAlloc()
		return nil, errors.Wrapf(err, "failed to start chrome")
	}
	d.browserCtx, d.cancelBrowser = browserCtx, cancel
	return browserCtx, nil
}

func (d *Driver) Open(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	browserCtx, err := d.start()
	if err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	p := &page{ctx: tabCtx, cancel: cancel, log: d.log}
	// allocate the tab on its own context so later per-call deadlines do not close it
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "failed to create tab")
	}

	actions := []chromedp.Action{network.Enable()}
	if len(opts.Headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers(lo.MapValues(opts.Headers, func(v string, _ string) any { return v }))))
	}
	if opts.Width > 0 && opts.Height > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)))
	}
	if err := p.run(ctx, actions...); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "failed to prepare page")
	}
	return p, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx == nil {
		return nil
	}
	err := chromedp.Cancel(d.browserCtx)
	d.cancelBrowser()
	d.cancelAlloc()
	d.browserCtx = nil
	return err
}

type page struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// within calls fn with a tab context that honours the caller's deadline and
// cancellation.
func (p *page) within(ctx context.Context, fn func(tabCtx context.Context) error) error {
	tabCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		tabCtx, cancel = context.WithDeadline(tabCtx, deadline)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return fn(tabCtx)
}

func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	return p.within(ctx, func(tabCtx context.Context) error {
		return chromedp.Run(tabCtx, actions...)
	})
}

func (p *page) Navigate(ctx context.Context, url string) (*browser.Navigation, error) {
	nav := &browser.Navigation{}
	err := p.within(ctx, func(tabCtx context.Context) error {
		resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
		if err != nil {
			return err
		}
		if resp != nil {
			nav.Status = int(resp.Status)
		}
		return chromedp.Run(tabCtx, chromedp.Location(&nav.URL))
	})
	if err != nil {
		return nil, err
	}
	return nav, nil
}

func (p *page) probe(ctx context.Context, q browser.Query, action string) (*browser.ProbeResult, error) {
	expr, err := browser.ProbeExpression(q, action)
	if err != nil {
		return nil, err
	}
	var res browser.ProbeResult
	if err := p.run(ctx, chromedp.Evaluate(expr, &res)); err != nil {
		return nil, errors.Wrapf(err, "probe for %s failed", q)
	}
	return &res, nil
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
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, action); err != nil {
		return nil, errors.Wrapf(err, "failed to take screenshot")
	}
	return buf, nil
}

func (p *page) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	return err
}
