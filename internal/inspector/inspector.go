package inspector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"music_police/internal/logger"
)

var (
	// ErrFetch is recorded when a page cannot be retrieved
	ErrFetch = errors.New("failed to fetch page")
	// ErrExtraction is recorded when the page has no title-bearing element
	ErrExtraction = errors.New("failed to extract title")
)

const (
	userAgent = "music_police_bot/1.0 (+link inspection)"
	// maxPageBytes bounds how much of a page is parsed; markup past it is ignored
	maxPageBytes = 2 << 20
)

// Options configures an Inspector
type Options struct {
	Selector    string
	Attribute   string
	Keyword     string
	Timeout     time.Duration
	CacheTTL    time.Duration // zero disables the title cache
	Concurrency int
	HTTPClient  *http.Client // overrides Timeout when set
}

// DefaultOptions matches the watch-page markup the bot was written for
func DefaultOptions() Options {
	return Options{
		Selector:    ".watch-title",
		Attribute:   "title",
		Keyword:     "grateful",
		Timeout:     10 * time.Second,
		CacheTTL:    10 * time.Minute,
		Concurrency: 4,
	}
}

// Result is the outcome of inspecting one link. Err is informational only.
type Result struct {
	URL     string
	Title   string
	Matched bool
	Err     error
}

// Inspector fetches shared links and checks their titles for a keyword
type Inspector struct {
	client      *http.Client
	selector    string
	attribute   string
	keyword     string
	concurrency int
	titles      *cache.Cache
}

// New creates an Inspector
func New(opts Options) *Inspector {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	var titles *cache.Cache
	if opts.CacheTTL > 0 {
		titles = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return &Inspector{
		client:      client,
		selector:    opts.Selector,
		attribute:   opts.Attribute,
		keyword:     strings.ToLower(opts.Keyword),
		concurrency: concurrency,
		titles:      titles,
	}
}

// NormalizeURL strips Slack link markup: "<http://x|label>" becomes "http://x".
// Only one enclosing pair of angle brackets is removed.
func NormalizeURL(raw string) string {
	link := strings.TrimSpace(raw)
	link = strings.TrimPrefix(link, "<")
	link = strings.TrimSuffix(link, ">")
	if i := strings.Index(link, "|"); i >= 0 {
		link = link[:i]
	}
	return link
}

// InspectLink fetches one link and reports whether its title contains the keyword.
// Failures are logged and reported as a non-match, never returned.
func (i *Inspector) InspectLink(ctx context.Context, raw string) Result {
	link := NormalizeURL(raw)
	result := Result{URL: link}

	title, err := i.title(ctx, link)
	if err != nil {
		result.Err = err
		logger.GetLogger().Warn("link inspection failed", zap.String("url", link), zap.Error(err))
		return result
	}

	result.Title = title
	result.Matched = strings.Contains(strings.ToLower(title), i.keyword)
	logger.GetLogger().Debug("link inspected",
		zap.String("url", link),
		zap.String("title", title),
		zap.Bool("matched", result.Matched))
	return result
}

// InspectLinks inspects every link concurrently and returns results in input order.
// It returns only once every link has been checked or has failed.
func (i *Inspector) InspectLinks(ctx context.Context, raws []string) []Result {
	results := make([]Result, len(raws))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(i.concurrency)
	for idx, raw := range raws {
		group.Go(func() error {
			results[idx] = i.InspectLink(groupCtx, raw)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (i *Inspector) title(ctx context.Context, link string) (string, error) {
	if i.titles != nil {
		if cached, found := i.titles.Get(link); found {
			return cached.(string), nil
		}
	}

	title, err := i.fetchTitle(ctx, link)
	if err != nil {
		return "", err
	}
	if i.titles != nil {
		i.titles.SetDefault(link, title)
	}
	return title, nil
}

func (i *Inspector) fetchTitle(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: unexpected status code %d", ErrFetch, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	selection := doc.Find(i.selector).First()
	if selection.Length() == 0 {
		return "", fmt.Errorf("%w: no element matches %q", ErrExtraction, i.selector)
	}
	title, ok := selection.Attr(i.attribute)
	if !ok {
		return "", fmt.Errorf("%w: %q has no %s attribute", ErrExtraction, i.selector, i.attribute)
	}
	return title, nil
}
