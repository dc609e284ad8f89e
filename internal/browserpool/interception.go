package browserpool

import (
	"context"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// resourceBlockPatterns maps a coarse resource type to the URL glob
// patterns chromedp's network domain understands, so the Fetcher can
// avoid downloading images/fonts/stylesheets/media it never reads.
var resourceBlockPatterns = map[string][]string{
	"image":      {"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg"},
	"font":       {"*.woff", "*.woff2", "*.ttf", "*.otf"},
	"stylesheet": {"*.css"},
	"media":      {"*.mp4", "*.webm", "*.mp3", "*.m3u8"},
}

// enableRequestBlocking returns an action that enables the network domain
// and blocks URLs matching the given resource type names.
func enableRequestBlocking(types []string) chromedp.Action {
	var patterns []string
	for _, t := range types {
		patterns = append(patterns, resourceBlockPatterns[t]...)
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		if len(patterns) == 0 {
			return nil
		}
		return network.SetBlockedURLs(patterns).Do(ctx)
	})
}
