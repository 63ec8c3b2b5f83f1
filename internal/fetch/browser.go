// Package fetch - browser.go provides headless browser rendering for pages
// that only populate their meta tags from JavaScript.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// NeedsBrowser reports whether a plain HTTP fetch produced too little
// metadata to be useful.
func NeedsBrowser(meta *PageMeta) bool {
	return meta == nil || meta.Title == ""
}

// WithBrowser renders a page in a headless browser and returns the rendered
// HTML. Requires Chrome/Chromium to be installed on the system.
func WithBrowser(ctx context.Context, url string, timeout time.Duration, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("starting headless browser", "url", url)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// Players inject og tags after hydration
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	logger.Debug("rendered page", "url", url, "bytes", len(html))
	return html, nil
}
