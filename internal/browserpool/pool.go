// Package browserpool manages a bounded set of headless browser instances
// and the pages leased from them, recycling browsers by age or use count.
package browserpool

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/engineerr"
)

// Config configures Pool behavior.
type Config struct {
	MaxBrowsers        int
	MaxPagesPerBrowser int
	MaxBrowserAge      time.Duration
	BrowserResetCount  int
	NavigationTimeout  time.Duration
	ViewportWidth      int64
	ViewportHeight     int64
	UserAgent          string
	BlockResourceTypes []string
}

func (c *Config) applyDefaults() {
	if c.MaxBrowsers == 0 {
		c.MaxBrowsers = 3
	}
	if c.MaxPagesPerBrowser == 0 {
		c.MaxPagesPerBrowser = 5
	}
	if c.MaxBrowserAge == 0 {
		c.MaxBrowserAge = 30 * time.Minute
	}
	if c.BrowserResetCount == 0 {
		c.BrowserResetCount = 50
	}
	if c.NavigationTimeout == 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.ViewportWidth == 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight == 0 {
		c.ViewportHeight = 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.BlockResourceTypes == nil {
		c.BlockResourceTypes = []string{"image", "font", "stylesheet", "media"}
	}
}

// Page is a leased page bound to its owning browser.
type Page struct {
	Ctx     context.Context
	Cancel  context.CancelFunc
	browser *browser
}

// browser tracks one managed chromedp allocator + root context.
type browser struct {
	mu sync.Mutex

	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc

	createdAt  time.Time
	pageCount  int
	openPages  int
	connected  bool
}

// Pool manages a bounded set of browsers and the pages leased from them.
type Pool struct {
	cfg    Config
	logger *zap.Logger
	clock  clock.Clock

	mu        sync.Mutex
	cond      *sync.Cond
	browsers  []*browser
	stopped   bool
}

// New constructs a Pool. cfg is copied and defaulted.
func New(cfg Config, c clock.Clock, logger *zap.Logger) *Pool {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.Real
	}
	p := &Pool{cfg: cfg, logger: logger.With(zap.String("component", "browser_pool")), clock: c}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// GetPage returns a leased Page, blocking until a browser slot is free or
// ctx is cancelled. proxyURL, if non-empty, is only honored when a new
// browser must be launched to satisfy the request — an existing pooled
// browser keeps whatever proxy it was launched with until it is recycled.
func (p *Pool) GetPage(ctx context.Context, proxyURL string) (*Page, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	p.mu.Lock()
	for {
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, engineerr.Wrap(engineerr.Cancelled, "waiting for browser page", err)
		}
		if b := p.findUsableLocked(); b != nil {
			b.openPages++
			b.pageCount++
			p.mu.Unlock()
			return p.newPage(ctx, b)
		}
		if len(p.browsers) < p.cfg.MaxBrowsers {
			b, err := p.launchLocked(ctx, proxyURL)
			if err != nil {
				p.mu.Unlock()
				return nil, engineerr.Wrap(engineerr.Internal, "launch browser", err)
			}
			b.openPages++
			b.pageCount++
			p.mu.Unlock()
			return p.newPage(ctx, b)
		}
		p.cond.Wait()
	}
}

func (p *Pool) findUsableLocked() *browser {
	for _, b := range p.browsers {
		b.mu.Lock()
		usable := b.connected && b.openPages < p.cfg.MaxPagesPerBrowser && !p.expiredLocked(b)
		b.mu.Unlock()
		if usable {
			return b
		}
	}
	return nil
}

func (p *Pool) expiredLocked(b *browser) bool {
	if p.clock.Now().Sub(b.createdAt) >= p.cfg.MaxBrowserAge {
		return true
	}
	if b.pageCount >= p.cfg.BrowserResetCount {
		return true
	}
	return false
}

func (p *Pool) launchLocked(ctx context.Context, proxyURL string) (*browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(int(p.cfg.ViewportWidth), int(p.cfg.ViewportHeight)),
		chromedp.UserAgent(p.cfg.UserAgent),
	)
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(rootCtx); err != nil {
		rootCancel()
		allocCancel()
		return nil, err
	}

	b := &browser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		createdAt:   p.clock.Now(),
		connected:   true,
	}
	p.browsers = append(p.browsers, b)
	p.logger.Info("launched browser", zap.Int("total", len(p.browsers)))
	return b, nil
}

func (p *Pool) newPage(ctx context.Context, b *browser) (*Page, error) {
	b.mu.Lock()
	root := b.rootCtx
	b.mu.Unlock()

	pageCtx, pageCancel := chromedp.NewContext(root)
	navCtx, navCancel := context.WithTimeout(pageCtx, p.cfg.NavigationTimeout)
	cancel := func() {
		navCancel()
		pageCancel()
	}

	if len(p.cfg.BlockResourceTypes) > 0 {
		if err := chromedp.Run(navCtx, enableRequestBlocking(p.cfg.BlockResourceTypes)); err != nil {
			p.logger.Warn("failed to enable request interception", zap.Error(err))
		}
	}

	return &Page{Ctx: navCtx, Cancel: cancel, browser: b}, nil
}

// ReleasePage returns a page to the pool, closing the page context and
// recycling the owning browser if it has aged out or reached its page
// limit, or is disconnected.
func (p *Pool) ReleasePage(page *Page) {
	if page == nil {
		return
	}
	page.Cancel()

	b := page.browser
	b.mu.Lock()
	b.openPages--
	recycle := p.expiredLocked(b) || !b.connected
	b.mu.Unlock()

	if recycle {
		p.recycle(b)
	}

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Pool) recycle(b *browser) {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.mu.Unlock()

	b.rootCancel()
	b.allocCancel()

	p.mu.Lock()
	for i, cand := range p.browsers {
		if cand == b {
			p.browsers = append(p.browsers[:i], p.browsers[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	p.logger.Info("recycled browser")
}

// Running reports the number of currently-open browsers, for the control
// plane status endpoint.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.browsers)
}

// Max reports the configured browser ceiling.
func (p *Pool) Max() int { return p.cfg.MaxBrowsers }

// Stop closes every managed browser.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	browsers := append([]*browser(nil), p.browsers...)
	p.browsers = nil
	p.mu.Unlock()

	for _, b := range browsers {
		b.rootCancel()
		b.allocCancel()
	}
	p.cond.Broadcast()
}
