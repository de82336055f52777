package chromedp_fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/pkg/logger"
	"github.com/user/gig-sync-service/pkg/useragent"
	"go.uber.org/zap"
)

// ErrClosed is returned by Fetch after Close.
var ErrClosed = errors.New("browser closed")

// settleDelay gives client-side rendering a moment after the document is ready.
const settleDelay = 1500 * time.Millisecond

// Fetcher loads pages in a shared headless Chrome, one tab per page.
type Fetcher struct {
	timeout   time.Duration
	userAgent string
	logger    *zap.Logger
	launch    func() (context.Context, context.CancelFunc, error)

	mu         sync.Mutex
	browserCtx context.Context
	stop       context.CancelFunc
	closed     bool
}

// NewFetcher creates a fetcher. The browser is launched on the first Fetch.
func NewFetcher(timeout time.Duration, l *zap.Logger) *Fetcher {
	f := &Fetcher{
		timeout:   timeout,
		userAgent: useragent.Default(),
		logger:    logger.OrNop(l).With(zap.String("component", "chromedp_fetcher")),
	}
	f.launch = f.launchChrome
	return f
}

// browser returns the shared browser context, launching it once. Concurrent
// first callers wait on the mutex and reuse the same launch.
func (f *Fetcher) browser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	if f.browserCtx != nil {
		return f.browserCtx, nil
	}

	f.logger.Info("launching browser")
	ctx, stop, err := f.launch()
	if err != nil {
		return nil, err
	}
	f.browserCtx = ctx
	f.stop = stop
	return ctx, nil
}

func (f *Fetcher) launchChrome() (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-http2", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(f.userAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(f.logger.Sugar().Debugf))
	stop := func() {
		cancelBrowser()
		cancelAlloc()
	}
	if err := chromedp.Run(browserCtx); err != nil {
		stop()
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	return browserCtx, stop, nil
}

// Fetch opens url in a new tab and returns the rendered document.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*entity.FetchResult, error) {
	browserCtx, err := f.browser()
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTimeout()
	// The caller's cancellation closes the tab too.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var (
		statusMu sync.Mutex
		status   int
	)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		statusMu.Lock()
		if status == 0 {
			status = int(resp.Response.Status)
		}
		statusMu.Unlock()
	})

	start := time.Now()
	var html string
	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "el-GR,el;q=0.9,en;q=0.8"}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("load %s: %w", url, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("load %s: %w", url, err)
	}

	statusMu.Lock()
	code := status
	statusMu.Unlock()
	if code == 0 {
		code = 200
	}
	return &entity.FetchResult{URL: url, HTML: html, StatusCode: code, Duration: time.Since(start)}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.browserCtx == nil {
		return nil
	}
	f.logger.Info("closing browser")
	f.stop()
	f.browserCtx = nil
	return nil
}
