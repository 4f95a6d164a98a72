package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/operator-ai/deskpilot/internal/action"
)

// BrowserHost performs browser-bound primitives through chromedp. The
// browser window stays open across primitives so a navigation in one step
// is still there for the next; Close tears it down.
type BrowserHost struct {
	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc

	ScreenshotDir string
}

// NewBrowserHost returns a lazy browser host; Chrome starts on first use.
func NewBrowserHost(screenshotDir string) *BrowserHost {
	if screenshotDir == "" {
		screenshotDir = "screenshots"
	}
	return &BrowserHost{ScreenshotDir: screenshotDir}
}

// Supports reports the primitive kinds handled by the browser.
func (b *BrowserHost) Supports(kind action.Kind) bool {
	return kind == action.KindOpenURL
}

func (b *BrowserHost) init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", false),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	return chromedp.Run(b.browserCtx)
}

func (b *BrowserHost) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the browser down.
func (b *BrowserHost) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}

// Invoke performs one browser primitive.
func (b *BrowserHost) Invoke(ctx context.Context, prim action.Primitive) (Result, error) {
	if prim.Kind != action.KindOpenURL {
		return Result{}, fmt.Errorf("browser host cannot perform %s", prim.Kind)
	}
	url := prim.StringParam("url")
	if url == "" {
		return Result{}, fmt.Errorf("open_url requires a url")
	}

	if err := b.init(); err != nil {
		return Result{}, fmt.Errorf("failed to initialize browser: %w", err)
	}

	actionCtx, cancel := b.bounded(ctx)
	defer cancel()

	var title string
	err := chromedp.Run(actionCtx,
		chromedp.Navigate(url),
		chromedp.Title(&title),
	)
	if err != nil {
		return Result{ExitCode: 1, Stderr: err.Error()}, nil
	}

	out := fmt.Sprintf("navigated to %s (title: %s)", url, title)
	// A failed capture never fails the navigation.
	if shot, err := b.CapturePage(ctx); err == nil {
		out = fmt.Sprintf("%s, capture %s", out, shot)
	}
	return Result{Stdout: out}, nil
}

// CapturePage screenshots the current tab into ScreenshotDir.
func (b *BrowserHost) CapturePage(ctx context.Context) (string, error) {
	if err := b.init(); err != nil {
		return "", fmt.Errorf("failed to initialize browser: %w", err)
	}
	actionCtx, cancel := b.bounded(ctx)
	defer cancel()

	var buf []byte
	err := chromedp.Run(actionCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().Do(ctx)
		return err
	}))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.ScreenshotDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(b.ScreenshotDir, fmt.Sprintf("page_%d.png", time.Now().UnixNano()))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", err
	}
	abs, _ := filepath.Abs(path)
	return abs, nil
}

// bounded derives the per-action context from the browser context while
// honoring the caller's deadline.
func (b *BrowserHost) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := 60 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return context.WithTimeout(b.browserCtx, timeout)
}
