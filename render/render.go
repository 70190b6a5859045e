// Package render turns finalized lesson data into print-ready PDF bytes
// using a headless browser driving the print frontend, with a fixed pool of
// reusable pages.
package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/digimakers/lessonpipe/lesson"
)

// Renderer produces a PDF from one lesson.
type Renderer interface {
	Render(ctx context.Context, l *lesson.Lesson) ([]byte, error)
}

// A4 paper size in inches for printToPDF.
const (
	paperWidthIn  = 8.27
	paperHeightIn = 11.69
)

// Config configures the browser renderer.
type Config struct {
	// PrintURL is the frontend print page the renderer drives.
	PrintURL string `json:"print_url" yaml:"print_url"`

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string `json:"remote_url" yaml:"remote_url"`

	// PoolSize is the number of concurrently usable pages (default: 4).
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// PageTimeout bounds pagination and image loading per render (default: 30s).
	PageTimeout time.Duration `json:"page_timeout" yaml:"page_timeout"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser renders lessons through a pooled headless Chrome.
type Browser struct {
	cfg    Config
	logger *slog.Logger

	browser *rod.Browser
	lnch    *launcher.Launcher

	pool chan *rod.Page

	mu      sync.Mutex
	created int
	closed  bool
}

// NewBrowser creates a Browser renderer. Call Start before rendering.
func NewBrowser(cfg Config) *Browser {
	cfg.defaults()
	return &Browser{
		cfg:    cfg,
		logger: cfg.Logger,
		pool:   make(chan *rod.Page, cfg.PoolSize),
	}
}

// Start launches Chrome (or connects to a remote instance).
func (b *Browser) Start(ctx context.Context) error {
	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("render: launch: %w", err)
		}
		b.lnch = l
		wsURL = u
		b.logger.Info("render: launched local chrome", "url", wsURL)
	} else {
		b.logger.Info("render: connecting to remote chrome", "url", wsURL)
	}

	br := rod.New().ControlURL(wsURL).Context(ctx)
	if err := br.Connect(); err != nil {
		return fmt.Errorf("render: connect: %w", err)
	}
	b.browser = br
	return nil
}

// Close shuts down the pages and Chrome.
func (b *Browser) Close() error {
	b.mu.Lock()
	b.closed = true
	created := b.created
	b.mu.Unlock()

	for i := 0; i < created; i++ {
		p := <-b.pool
		p.Close()
	}
	if b.browser != nil {
		b.browser.Close()
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
	}
	return nil
}

// Render produces the PDF for one lesson. Safe for concurrent use; blocks
// when all pooled pages are busy.
func (b *Browser) Render(ctx context.Context, l *lesson.Lesson) ([]byte, error) {
	page, err := b.acquirePage(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { b.pool <- page }()

	start := time.Now()
	pdf, err := b.renderOnPage(ctx, page, l)
	if err != nil {
		return nil, err
	}
	b.logger.Info("render: pdf generated",
		"project", l.Project, "bytes", len(pdf), "elapsed", time.Since(start))
	return pdf, nil
}

// acquirePage returns a free pooled page, creating one while the pool is
// below its size.
func (b *Browser) acquirePage(ctx context.Context) (*rod.Page, error) {
	select {
	case p := <-b.pool:
		return p, nil
	default:
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("render: renderer is closed")
	}
	if b.created < b.cfg.PoolSize {
		b.created++
		b.mu.Unlock()
		p, err := b.newPage(ctx)
		if err != nil {
			b.mu.Lock()
			b.created--
			b.mu.Unlock()
			return nil, err
		}
		return p, nil
	}
	b.mu.Unlock()

	select {
	case p := <-b.pool:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// newPage opens a tab on the print frontend with an A4 viewport.
func (b *Browser) newPage(ctx context.Context) (*rod.Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("render: create page: %w", err)
	}

	// A4 at 96 DPI, doubled scale for crisp raster images.
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             794,
		Height:            1123,
		DeviceScaleFactor: 2,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("render: set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.PageTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(b.cfg.PrintURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("render: navigate %s: %w", b.cfg.PrintURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		page.Close()
		return nil, fmt.Errorf("render: wait load %s: %w", b.cfg.PrintURL, err)
	}
	return page, nil
}

func (b *Browser) renderOnPage(ctx context.Context, page *rod.Page, l *lesson.Lesson) ([]byte, error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.cfg.PageTimeout)
	defer cancel()
	p := page.Context(waitCtx)

	// Clear previous data so the frontend detects the change.
	if _, err := p.Eval(`() => { window.PDF_DATA = null; }`); err != nil {
		return nil, fmt.Errorf("render: reset page data: %w", err)
	}
	if _, err := p.Eval(`(data) => { window.PDF_DATA = data; }`, l); err != nil {
		return nil, fmt.Errorf("render: inject lesson data: %w", err)
	}

	// The print frontend sets window.PAGED_READY once pagination completes.
	if err := p.Wait(rod.Eval(`() => window.PAGED_READY === true`)); err != nil {
		return nil, fmt.Errorf("render: wait pagination: %w", err)
	}
	err := p.Wait(rod.Eval(`() => {
		const images = Array.from(document.querySelectorAll('img'));
		return images.every((img) => img.complete && img.naturalHeight > 0);
	}`))
	if err != nil {
		return nil, fmt.Errorf("render: wait images: %w", err)
	}

	width, height := paperWidthIn, paperHeightIn
	printBackground := true
	stream, err := p.PDF(&proto.PagePrintToPDF{
		PrintBackground: printBackground,
		PaperWidth:      &width,
		PaperHeight:     &height,
	})
	if err != nil {
		return nil, fmt.Errorf("render: print to pdf: %w", err)
	}
	defer stream.Close()

	pdf, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("render: read pdf stream: %w", err)
	}
	if err := Verify(bytes.NewReader(pdf)); err != nil {
		return nil, err
	}
	return pdf, nil
}
