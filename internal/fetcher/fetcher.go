// Package fetcher navigates to a tracked account's profile page through
// the Browser Pool and Proxy Pool, extracts its public counts and recent
// engagement, and normalizes the result into a models.Sample.
package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/browserpool"
	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/models"
	"github.com/northlane-labs/social-tracker/internal/proxypool"
	"github.com/northlane-labs/social-tracker/pkg/countparse"
)

// Config configures Fetcher behavior.
type Config struct {
	BaseURL             string
	Selectors           Selectors
	MaxPostCells        int
	MaxScrollIterations int
	NetworkIdleSettle   time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxPostCells == 0 {
		c.MaxPostCells = 20
	}
	if c.MaxScrollIterations == 0 {
		c.MaxScrollIterations = 10
	}
	if c.NetworkIdleSettle == 0 {
		c.NetworkIdleSettle = 500 * time.Millisecond
	}
	if (c.Selectors == Selectors{}) {
		c.Selectors = DefaultSelectors()
	}
}

// Fetcher composes the Browser Pool and Proxy Pool to produce one Sample
// per call.
type Fetcher struct {
	cfg      Config
	browsers *browserpool.Pool
	proxies  *proxypool.Pool
	clock    clock.Clock
	logger   *zap.Logger
}

// New constructs a Fetcher.
func New(cfg Config, browsers *browserpool.Pool, proxies *proxypool.Pool, c clock.Clock, logger *zap.Logger) *Fetcher {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.Real
	}
	return &Fetcher{cfg: cfg, browsers: browsers, proxies: proxies, clock: c, logger: logger.With(zap.String("component", "fetcher"))}
}

// Fetch produces a Sample for account, or a classified Navigation/
// AccountNotFound/Parse/Transport error.
func (f *Fetcher) Fetch(ctx context.Context, account *models.Account) (*models.Sample, error) {
	profileURL := fmt.Sprintf("%s/%s", strings.TrimRight(f.cfg.BaseURL, "/"), account.Username)

	var sample *models.Sample
	err := f.proxies.WithProxy(ctx, func(ctx context.Context, proxy models.ProxyState) error {
		page, err := f.browsers.GetPage(ctx, proxyURLFor(proxy))
		if err != nil {
			return err
		}
		defer f.browsers.ReleasePage(page)

		s, ferr := f.fetchWithPage(page.Ctx, profileURL, account)
		if ferr != nil {
			return ferr
		}
		sample = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sample, nil
}

func proxyURLFor(p models.ProxyState) string {
	scheme := string(p.Protocol)
	if scheme == "" {
		scheme = "http"
	}
	if p.Auth != nil && p.Auth.Username != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", scheme, p.Auth.Username, p.Auth.Password, p.Host, p.Port)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.Host, p.Port)
}

func (f *Fetcher) fetchWithPage(ctx context.Context, profileURL string, account *models.Account) (*models.Sample, error) {
	var landedURL string

	err := chromedp.Run(ctx,
		chromedp.Navigate(profileURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.NetworkIdleSettle),
		chromedp.Location(&landedURL),
	)
	if err != nil {
		if proxypool.IsProxySignal(err) {
			return nil, engineerr.Wrap(engineerr.Transport, "navigation failed", err)
		}
		return nil, engineerr.Wrap(engineerr.Navigation, "navigation failed", err)
	}

	if !strings.Contains(strings.ToLower(landedURL), strings.ToLower(account.Username)) {
		return nil, engineerr.New(engineerr.NotFound, "profile redirected away from requested username")
	}

	html, err := f.loadCells(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Parse, "parse profile document", err)
	}

	followers, err := f.requiredCount(doc, f.cfg.Selectors.FollowersCount)
	if err != nil {
		return nil, err
	}
	following, err := f.requiredCount(doc, f.cfg.Selectors.FollowingCount)
	if err != nil {
		return nil, err
	}
	posts, err := f.requiredCount(doc, f.cfg.Selectors.PostsCount)
	if err != nil {
		return nil, err
	}

	engagement := f.aggregateEngagement(doc)

	return &models.Sample{
		AccountID:  account.ID,
		ObservedAt: f.clock.Now(),
		Followers:  followers,
		Following:  following,
		Posts:      posts,
		Engagement: engagement,
		Source:     "scraper",
	}, nil
}

func (f *Fetcher) requiredCount(doc *goquery.Document, selector string) (int, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return 0, engineerr.New(engineerr.Parse, fmt.Sprintf("required selector missing: %s", selector))
	}
	return countparse.Parse(strings.TrimSpace(sel.Text())), nil
}

// loadCells scrolls until MaxPostCells distinct post cells are visible or a
// full scroll yields no new cells, bounded by MaxScrollIterations. It
// returns the final page HTML.
func (f *Fetcher) loadCells(ctx context.Context) (string, error) {
	var html string
	lastCount := -1

	for i := 0; i < f.cfg.MaxScrollIterations; i++ {
		if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return "", engineerr.Wrap(engineerr.Parse, "read page HTML", err)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return "", engineerr.Wrap(engineerr.Parse, "parse profile document", err)
		}

		count := doc.Find(f.cfg.Selectors.PostCell).Length()
		if count >= f.cfg.MaxPostCells || count == lastCount {
			break
		}
		lastCount = count

		if err := chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil)); err != nil {
			return "", engineerr.Wrap(engineerr.Navigation, "scroll to load more posts", err)
		}
		if err := chromedp.Run(ctx, chromedp.Sleep(f.cfg.NetworkIdleSettle)); err != nil {
			return "", engineerr.Wrap(engineerr.Navigation, "settle after scroll", err)
		}
	}

	return html, nil
}

// aggregateEngagement averages like/retweet/reply counts over the first
// MaxPostCells non-promoted, non-social-context post cells. Zero posts
// observed yields zero engagement.
func (f *Fetcher) aggregateEngagement(doc *goquery.Document) models.Engagement {
	sel := f.cfg.Selectors
	var likesSum, retweetsSum, repliesSum, n int

	doc.Find(sel.PostCell).EachWithBreak(func(i int, cell *goquery.Selection) bool {
		if n >= f.cfg.MaxPostCells {
			return false
		}
		if sel.PostPromoted != "" && cell.Find(sel.PostPromoted).Length() > 0 {
			return true
		}
		if sel.PostSocialCtx != "" && cell.Find(sel.PostSocialCtx).Length() > 0 {
			return true
		}

		likesSum += countparse.Parse(strings.TrimSpace(cell.Find(sel.PostLikes).First().Text()))
		retweetsSum += countparse.Parse(strings.TrimSpace(cell.Find(sel.PostRetweets).First().Text()))
		repliesSum += countparse.Parse(strings.TrimSpace(cell.Find(sel.PostReplies).First().Text()))
		n++
		return true
	})

	if n == 0 {
		return models.Engagement{}
	}
	return models.Engagement{
		AvgLikes:    roundDiv(likesSum, n),
		AvgRetweets: roundDiv(retweetsSum, n),
		AvgReplies:  roundDiv(repliesSum, n),
	}
}

func roundDiv(sum, n int) int {
	if n == 0 {
		return 0
	}
	return (sum + n/2) / n
}
