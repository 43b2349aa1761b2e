package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"sjsage522/storefrontscraper/helpers"
	"sjsage522/storefrontscraper/logger"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// EngineChrome is the headless browser engine name
const EngineChrome = "chrome"

// hideWebdriver runs before any page script so the navigator does not
// announce automation.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || {runtime: {}};
Object.defineProperty(navigator, 'languages', {get: () => ['ru-RU', 'ru', 'en-US', 'en']});`

// ChromeOptions configures the browser engine
type ChromeOptions struct {
	Headless          bool
	Timeout           time.Duration
	Scroll            bool
	ScrollMaxAttempts int
	ScrollNoChange    int
	ScrollPause       time.Duration
	ExecPath          string
}

// ChromeEngine renders pages in a fresh headless Chrome per fetch and
// scrolls the infinite feed until it stops growing. No browser session is
// shared between concurrent fetches.
type ChromeEngine struct {
	opts ChromeOptions
	log  *logger.Logger
}

// NewChromeEngine creates the browser engine
func NewChromeEngine(opts ChromeOptions) *ChromeEngine {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.ScrollMaxAttempts <= 0 {
		opts.ScrollMaxAttempts = 50
	}
	if opts.ScrollNoChange <= 0 {
		opts.ScrollNoChange = 5
	}
	if opts.ScrollPause <= 0 {
		opts.ScrollPause = 1200 * time.Millisecond
	}
	return &ChromeEngine{opts: opts, log: logger.ForFetcher(EngineChrome)}
}

func (e *ChromeEngine) Name() string {
	return EngineChrome
}

// Fetch navigates to url and returns the rendered document
func (e *ChromeEngine) Fetch(ctx context.Context, url string) (string, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", e.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(helpers.RandomUserAgent()),
		chromedp.WindowSize(1366, 900),
	)
	if e.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(e.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	tabCtx, cancel := context.WithTimeout(browserCtx, e.opts.Timeout)
	defer cancel()

	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}

	if e.opts.Scroll {
		steps, err := e.scroll(tabCtx)
		if err != nil {
			e.log.Warn().Err(err).Str("url", url).Int("steps", steps).Msg("Scrolling stopped early")
		} else {
			e.log.Debug().Str("url", url).Int("steps", steps).Msg("Feed stopped growing")
		}
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document %s: %w", url, err)
	}
	return html, nil
}

// scroll moves down the page in random steps until the document height has
// not changed for ScrollNoChange consecutive steps or ScrollMaxAttempts is
// reached. It returns the number of steps taken.
func (e *ChromeEngine) scroll(ctx context.Context) (int, error) {
	var lastHeight int64
	unchanged := 0
	steps := 0

	for steps < e.opts.ScrollMaxAttempts && unchanged < e.opts.ScrollNoChange {
		var height int64
		step := 500 + rand.Intn(1001)
		err := chromedp.Run(ctx,
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d); document.body.scrollHeight", step), &height),
			chromedp.Sleep(e.opts.ScrollPause),
		)
		if err != nil {
			return steps, err
		}
		steps++

		if height == lastHeight {
			unchanged++
		} else {
			unchanged = 0
			lastHeight = height
		}
	}
	return steps, nil
}
