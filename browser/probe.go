// Package browser answers CSS capability queries with a real Chromium,
// driven over the DevTools protocol.
//
// A [Probe] implements cssfeatures.CapabilityProbe by evaluating
// CSS.supports(property, value) in a blank page. Probe calls are sequential;
// callers must check [Probe.HasCapabilityQuery] first and fall back to
// cssfeatures.NoSupport when it reports false.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrClosed is returned by a Probe used after Close.
var ErrClosed = errors.New("browser probe closed")

const (
	hasCapabilityQueryJS = `() => typeof CSS !== 'undefined' && 'supports' in CSS`
	supportsJS           = `(property, value) => CSS.supports(property, value)`
)

// Config holds browser configuration.
type Config struct {
	// ControlURL connects to an already running browser (DevTools websocket URL).
	ControlURL string `yaml:"control_url" json:"control_url"`
	// Launch is the browser binary followed by extra flags, used when
	// ControlURL is empty. An empty Launch lets rod locate or download a browser.
	Launch []string `yaml:"launch" json:"launch"`
	// Headless runs a launched browser without a window.
	Headless bool `yaml:"headless" json:"headless"`
	// QueryTimeoutMs bounds every single CSS.supports call.
	QueryTimeoutMs int `yaml:"query_timeout_ms" json:"query_timeout_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		QueryTimeoutMs: 5000,
	}
}

// QueryTimeout returns the per-call timeout.
func (c Config) QueryTimeout() time.Duration {
	if c.QueryTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// Probe is a capability probe backed by a browser page.
type Probe struct {
	cfg    Config
	ctx    context.Context
	logger *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// Option configures [Open].
type Option func(*Probe)

// WithLogger sets the logger of the probe.
func WithLogger(l *zap.Logger) Option {
	return func(p *Probe) {
		if l != nil {
			p.logger = l
		}
	}
}

// Open connects to (or launches) a browser and opens a blank page.
// ctx bounds the whole lifetime of the probe.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Probe, error) {
	p := &Probe{cfg: cfg, ctx: ctx, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("browser")

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		if len(cfg.Launch) > 0 {
			l = l.Bin(cfg.Launch[0])
			for _, rawFlag := range cfg.Launch[1:] {
				name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
				if hasVal {
					l = l.Set(flags.Flag(name), val)
				} else {
					l = l.Set(flags.Flag(name))
				}
			}
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		p.launcher = l
		controlURL = u
		p.logger.Debug("browser launched", zap.String("control_url", u))
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		p.cleanupLauncher()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	p.browser = b

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	p.page = page
	return p, nil
}

// HasCapabilityQuery reports whether the page exposes CSS.supports.
func (p *Probe) HasCapabilityQuery() (bool, error) {
	return p.evalBool(hasCapabilityQueryJS)
}

// Supports evaluates CSS.supports(property, value) in the page.
func (p *Probe) Supports(property, value string) (bool, error) {
	ok, err := p.evalBool(supportsJS, property, value)
	if err != nil {
		return false, err
	}
	p.logger.Debug("CSS.supports", zap.String("property", property), zap.String("value", value), zap.Bool("supported", ok))
	return ok, nil
}

func (p *Probe) evalBool(js string, args ...any) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.page == nil {
		return false, ErrClosed
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.QueryTimeout())
	defer cancel()

	res, err := p.page.Context(ctx).Evaluate(rod.Eval(js, args...))
	if err != nil {
		return false, err
	}
	if res == nil || res.Value.Nil() {
		return false, fmt.Errorf("evaluate %s: no result", js)
	}
	return res.Value.Bool(), nil
}

// Close closes the page. A browser launched by [Open] is shut down as well;
// a browser attached through Config.ControlURL keeps running.
func (p *Probe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.page != nil {
		err = p.page.Close()
		p.page = nil
	}
	if p.browser != nil && p.launcher != nil {
		err = multierr.Append(err, p.browser.Close())
	}
	p.browser = nil
	p.cleanupLauncher()
	return err
}

// Launched reports whether the probe started its own browser.
func (p *Probe) Launched() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.launcher != nil
}

// cleanupLauncher kills a launched browser before removing its user data
// dir. Cleanup blocks until the process has exited.
func (p *Probe) cleanupLauncher() {
	if p.launcher != nil {
		p.launcher.Kill()
		p.launcher.Cleanup()
		p.launcher = nil
	}
}
