// Package screenshot renders entry HTML files to portrait PNG images with a
// headless browser.
package screenshot

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// Capture viewport matches the vertical video format.
const (
	viewportWidth  = 1080
	viewportHeight = 1920
)

const pageLoadTimeout = 15 * time.Second

// Renderer drives one headless browser instance across many captures, so
// discover mode does not pay browser startup per entry.
type Renderer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewRenderer starts the headless browser allocator.
func NewRenderer() *Renderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{allocCtx: allocCtx, allocCancel: cancel}
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.allocCancel()
}

// CaptureFile loads a local HTML file and writes its full-page screenshot
// next to it as PNG.
func (r *Renderer) CaptureFile(ctx context.Context, htmlPath, pngPath string) error {
	absPath, err := filepath.Abs(htmlPath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", htmlPath, err)
	}

	fileURL := url.URL{Scheme: "file", Path: absPath}

	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, pageLoadTimeout)
	defer cancelTimeout()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var png []byte
	err = chromedp.Run(tabCtx,
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
		chromedp.Navigate(fileURL.String()),
		chromedp.FullScreenshot(&png, 90),
	)
	if err != nil {
		return fmt.Errorf("failed to capture %s: %w", htmlPath, err)
	}

	if err := os.WriteFile(pngPath, png, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot %s: %w", pngPath, err)
	}

	logrus.Debugf("Captured %s", pngPath)
	return nil
}
