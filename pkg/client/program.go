package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/client/dto"
)

// Program is a browser session on the remote service. Every call sends one
// program statement to the session and waits for its result.
type Program interface {
	Error() error
	SessionID() string
	NavigateStatus(ctx context.Context, url string) (int, error)
	GetURL(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string, opts ...CallOption) error
	IsElementPresent(ctx context.Context, selector string) (bool, error)
	WaitVisible(ctx context.Context, selector string, opts ...CallOption) error
	WaitReady(ctx context.Context, selector string, opts ...CallOption) error
	TakeScreenshot(ctx context.Context, name string) ([]byte, error)
	Close() error
}

type Reporter interface {
	Report(msg string)
}

type Config struct {
	UseProxy       bool                `json:"useProxy" yaml:"useProxy" mapstructure:"use_proxy"`
	LocalDebug     bool                `json:"localDebug" yaml:"localDebug" mapstructure:"local_debug"`
	Url            string              `json:"url" yaml:"url" mapstructure:"url"`
	ApiKey         string              `json:"apiKey" yaml:"apiKey" mapstructure:"api_key"`
	Timeout        string              `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MessageTimeout string              `json:"messageTimeout" yaml:"messageTimeout" mapstructure:"message_timeout"`
	Secrets        []string            `json:"secrets" yaml:"secrets" mapstructure:"secrets"`
	Values         []string            `json:"values" yaml:"values" mapstructure:"values"`
	Cookies        []dto.BrowserCookie `json:"cookies,omitempty" yaml:"cookies,omitempty" mapstructure:"cookies"`
}

const (
	DefaultSessionTimeout = "600s"
	DefaultMessageTimeout = "60s"
)

// ProgramError is an error raised by the program inside the browser, as
// opposed to a failure to reach the service.
type ProgramError struct {
	Program string
	Message string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s: %s", e.Program, e.Message)
}

type Option func(p *program)

func WithSecrets(secrets map[string]string) Option {
	return func(p *program) {
		p.secrets = secrets
	}
}

func WithValues(values map[string]string) Option {
	return func(p *program) {
		p.values = values
	}
}

func WithViewport(width, height int) Option {
	return func(p *program) {
		if width > 0 && height > 0 {
			p.width, p.height = lo.ToPtr(width), lo.ToPtr(height)
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(p *program) {
		p.log = log
	}
}

// NewProgram starts a session and blocks until the service assigns it an ID.
func NewProgram(ctx context.Context, cfg Config, reporter Reporter, opts ...Option) (Program, error) {
	p := &program{
		cfg:      cfg,
		reporter: reporter,
		log:      zap.NewNop(),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = NewClient(cfg.Url, cfg.ApiKey, 30*time.Second, p.log)
	// the session outlives the ctx of the call that opened it
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	go p.run()

	reporter.Report("Waiting for sessionID...")
	select {
	case <-p.ready:
	case <-p.done:
		return nil, errors.Wrapf(p.Error(), "failed to start baas session")
	case <-ctx.Done():
		p.cancel()
		return nil, ctx.Err()
	}
	reporter.Report("Got sessionID: " + p.sessionID)
	return p, nil
}

type program struct {
	client    Client
	cfg       Config
	reporter  Reporter
	log       *zap.Logger
	secrets   map[string]string
	values    map[string]string
	width     *int
	height    *int
	ctx       context.Context
	cancel    context.CancelFunc
	ready     chan struct{}
	done      chan struct{}
	sessionID string

	mu  sync.Mutex
	err error
}

func (p *program) run() {
	defer close(p.done)
	defer p.cancel()
	res, wait, err := p.client.RunAsync(p.ctx, dto.Config{
		Browser: dto.BrowserOpts{
			Headful:          p.cfg.LocalDebug,
			ReturnScreenshot: lo.ToPtr(true),
			Timeout:          lo.CoalesceOrEmpty(p.cfg.Timeout, DefaultSessionTimeout),
			Cookies:          p.cfg.Cookies,
			Width:            p.width,
			Height:           p.height,
		},
		UseRandomProxy: lo.ToPtr(p.cfg.UseProxy),
	})
	if err != nil {
		p.exitWithError(err)
		return
	}
	if res.Error != "" {
		p.exitWithError(errors.Errorf("%s", res.Error))
		return
	}
	p.sessionID = res.SessionID
	close(p.ready)
	wait()
}

func (p *program) Error() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *program) SessionID() string {
	return p.sessionID
}

func (p *program) exitWithError(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.cancel()
}

func (p *program) Close() error {
	var err error
	if p.Error() == nil {
		_, err = p.message(context.Background(), p.functionCall1("log", "stopping session"), true)
	}
	p.cancel()
	<-p.done
	return err
}

func (p *program) runProgram(ctx context.Context, prog string) (*dto.BrowserMessageOut, error) {
	return p.message(ctx, prog, false)
}

func (p *program) message(ctx context.Context, prog string, stop bool) (*dto.BrowserMessageOut, error) {
	if err := p.Error(); err != nil {
		return nil, errors.Wrapf(err, "baas session is closed")
	}
	// calls are bound to both the caller and the session
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(p.ctx, cancel)()

	p.reporter.Report(fmt.Sprintf("Executing %q...", prog))
	res, err := p.client.Message(ctx, dto.BrowserMessageIn{
		SessionID:   p.sessionID,
		Program:     prog,
		Secrets:     p.secrets,
		Values:      p.values,
		Timeout:     lo.CoalesceOrEmpty(p.cfg.MessageTimeout, DefaultMessageTimeout),
		StopSession: lo.Ternary(stop, lo.ToPtr(true), nil),
	})
	p.log.Debug("baas program result",
		zap.String("program", prog),
		zap.Any("value", lo.FromPtr(res).Value),
		zap.String("programError", lo.FromPtr(res).Error),
		zap.Error(err))
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, &ProgramError{Program: prog, Message: res.Error}
	}
	return res, nil
}

// CallOption adds a trailing options object to a program statement.
type CallOption func(o map[string]any)

func WithTimeout(timeout string) CallOption {
	return func(o map[string]any) {
		o["timeout"] = timeout
	}
}

func WithoutTimeout() CallOption {
	return func(o map[string]any) {
		o["timeout"] = nil
	}
}

func WithIncludeInvisible() CallOption {
	return func(o map[string]any) {
		o["includeInvisible"] = true
	}
}

func WithSelector(selector string) CallOption {
	return func(o map[string]any) {
		o["selector"] = selector
	}
}

func (p *program) functionCall0(name string, opts ...CallOption) string {
	return p.functionCallN(name, lo.ToAnySlice(opts)...)
}

func (p *program) functionCall1(name, arg string, opts ...CallOption) string {
	return p.functionCallN(name, append([]any{arg}, lo.ToAnySlice(opts)...)...)
}

func (p *program) functionCall2(name, arg1, arg2 string, opts ...CallOption) string {
	return p.functionCallN(name, append([]any{arg1, arg2}, lo.ToAnySlice(opts)...)...)
}

// functionCallN renders name(args..., {options}) with every value encoded as a
// JavaScript literal, so selectors may contain any quote character.
func (p *program) functionCallN(name string, args ...any) string {
	opts := map[string]any{}
	var parts []string
	for _, a := range args {
		if opt, ok := a.(CallOption); ok {
			opt(opts)
			continue
		}
		parts = append(parts, jsLiteral(a))
	}
	if len(opts) > 0 {
		parts = append(parts, jsLiteral(opts))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

func jsLiteral(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func (p *program) Click(ctx context.Context, selector string, opts ...CallOption) error {
	_, err := p.runProgram(ctx, p.functionCall1("click", selector, opts...))
	return err
}

func (p *program) IsElementPresent(ctx context.Context, selector string) (bool, error) {
	res, err := p.runProgram(ctx, p.functionCall1("isElementPresent", selector))
	if err != nil {
		return false, err
	}
	present, ok := res.Value.(bool)
	if !ok {
		return false, errors.Errorf("unexpected isElementPresent result %v", res.Value)
	}
	return present, nil
}

func (p *program) WaitReady(ctx context.Context, selector string, opts ...CallOption) error {
	_, err := p.runProgram(ctx, p.functionCall1("waitReady", selector, opts...))
	return err
}

func (p *program) WaitVisible(ctx context.Context, selector string, opts ...CallOption) error {
	_, err := p.runProgram(ctx, p.functionCall1("waitVisible", selector, opts...))
	return err
}

func (p *program) NavigateStatus(ctx context.Context, url string) (int, error) {
	res, err := p.runProgram(ctx, p.functionCall1("navigateStatus", url))
	if err != nil {
		return 0, err
	}
	status, ok := res.Value.(float64)
	if !ok {
		return 0, errors.Errorf("failed to convert status code to int %v", res.Value)
	}
	return int(status), nil
}

func (p *program) TakeScreenshot(ctx context.Context, name string) ([]byte, error) {
	res, err := p.runProgram(ctx, p.functionCall1("takeScreenshot", name))
	if err != nil {
		return nil, err
	}
	if len(res.Screenshots[name]) == 0 {
		return nil, errors.Errorf("screenshot with name %s wasn't returned", name)
	}
	return res.Screenshots[name], nil
}

func (p *program) GetURL(ctx context.Context) (string, error) {
	res, err := p.runProgram(ctx, p.functionCall0("getURL"))
	if err != nil {
		return "", err
	}
	url, ok := res.Value.(string)
	if !ok {
		return "", errors.Errorf("unexpected getURL result %v", res.Value)
	}
	return url, nil
}
