package export

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// PDFRenderer turns a complete HTML document into PDF bytes
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string, layout PageLayout) ([]byte, error)
}

// RodRenderer prints documents to PDF with a headless Chromium driven by
// go-rod. The browser is launched on first use and shared by later calls.
type RodRenderer struct {
	bin        string
	controlURL string
	logger     *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// RodOption configures a RodRenderer
type RodOption func(*RodRenderer)

// WithBrowserBin uses a specific Chrome or Chromium binary
func WithBrowserBin(bin string) RodOption {
	return func(r *RodRenderer) { r.bin = bin }
}

// WithControlURL connects to an already running browser instead of
// launching one.
func WithControlURL(url string) RodOption {
	return func(r *RodRenderer) { r.controlURL = url }
}

// WithRodLogger sets the logger
func WithRodLogger(logger *zap.Logger) RodOption {
	return func(r *RodRenderer) { r.logger = logger }
}

// NewRodRenderer creates a renderer. No browser is started until the first
// RenderPDF call.
func NewRodRenderer(opts ...RodOption) *RodRenderer {
	r := &RodRenderer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return r.browser, nil
		}
		r.logger.Warn("stale browser connection, relaunching")
		_ = r.browser.Close()
		r.browser = nil
		r.cleanupLauncherLocked()
	}

	controlURL := r.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		if r.bin != "" {
			l = l.Bin(r.bin)
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		r.launcher = l
		controlURL = url
		r.logger.Debug("launched headless browser", zap.String("control_url", controlURL))
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		r.cleanupLauncherLocked()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	r.browser = browser
	return browser, nil
}

// RenderPDF loads html into a fresh tab and prints it with the layout's
// paper size and margins.
func (r *RodRenderer) RenderPDF(ctx context.Context, html string, layout PageLayout) ([]byte, error) {
	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for document: %w", err)
	}

	width := layout.Width()
	height := layout.Height()
	margin := layout.MarginIn
	scale := layout.Scale
	if scale <= 0 {
		scale = 1
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		Landscape:       false, // width and height already reflect orientation
		PrintBackground: layout.PrintBackground,
		Scale:           &scale,
		PaperWidth:      &width,
		PaperHeight:     &height,
		MarginTop:       &margin,
		MarginBottom:    &margin,
		MarginLeft:      &margin,
		MarginRight:     &margin,
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return data, nil
}

// Close shuts down the browser if one was started
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	r.cleanupLauncherLocked()
	return err
}

func (r *RodRenderer) cleanupLauncherLocked() {
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
}
