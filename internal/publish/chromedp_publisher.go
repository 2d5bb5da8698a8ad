package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const publishTimeout = 60 * time.Second

// ChromeDPPublisher drives a browser session to submit a post through a
// web composer UI — the concrete collaborator behind the Publisher
// interface (spec §4.11).
type ChromeDPPublisher struct {
	// RemoteURL, when set, connects to an already-running browser's
	// remote debugging endpoint instead of launching a local headless
	// instance.
	RemoteURL string
	// ComposeURL is the page hosting the post composer.
	ComposeURL string
	// ComposerSelector and SubmitSelector locate the text field and
	// submit control on ComposeURL.
	ComposerSelector string
	SubmitSelector   string
}

// Publish opens ComposeURL, types text into the composer, and submits it,
// bounded by a 60s timeout.
func (p *ChromeDPPublisher) Publish(ctx context.Context, text string) error {
	var allocatorCtx context.Context
	var cancel context.CancelFunc
	if p.RemoteURL != "" {
		allocatorCtx, cancel = chromedp.NewRemoteAllocator(ctx, p.RemoteURL)
	} else {
		allocatorCtx, cancel = chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	}
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocatorCtx)
	defer cancel()

	timeoutCtx, cancel := context.WithTimeout(browserCtx, publishTimeout)
	defer cancel()

	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(p.ComposeURL),
		chromedp.WaitVisible(p.ComposerSelector),
		chromedp.SendKeys(p.ComposerSelector, text),
		chromedp.Click(p.SubmitSelector),
	)
	if err != nil {
		return fmt.Errorf("publish: chromedp run failed: %w", err)
	}
	return nil
}
