// Package discovery finds the catalog identifier of the next upcoming limited edition
// on an announcement page, before the catalog itself exposes it as trackable.
package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// idPattern matches links to a limited edition, e.g. https://displate.com/limited-edition/displate/123456.
var idPattern = regexp.MustCompile(`/limited(?:-edition)?/(?:[^/?#]+/)*(\d+)(?:[/?#]|$)`)

// Finder extracts listing identifiers from an HTML announcement page.
type Finder struct {
	log     *slog.Logger
	client  *http.Client
	destURL string
}

// NewFinder creates a Finder reading the page at destinationURL.
func NewFinder(log *slog.Logger, destinationURL string) *Finder {
	return &Finder{log: log, destURL: destinationURL, client: http.DefaultClient}
}

// DiscoverUpcomingID returns the first limited edition identifier linked from the page.
// The boolean is false when the page links to no limited edition.
func (f *Finder) DiscoverUpcomingID(ctx context.Context) (int64, bool, error) {
	resp, err := f.getHTMLResponse(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get html response: %w", err)
	}
	defer resp.Body.Close()

	return f.parseLinks(ctx, resp.Body)
}

func (f *Finder) getHTMLResponse(ctx context.Context) (*http.Response, error) {
	reqURL, err := url.Parse(f.destURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse destination URL %s: %w", f.destURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request %s: %w", reqURL.String(), err)
	}

	req.Header.Add("User-Agent", "Mozilla/5.0 (compatible; GoHttpClient/1.0)")

	f.log.DebugContext(ctx, "Send request", "method", req.Method, "URL", req.URL, "header", req.Header)

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", f.destURL, err)
	}

	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("status code error: [%d] %s", res.StatusCode, res.Status)
	}

	f.log.InfoContext(ctx, "Successfully received http response", "status code", res.StatusCode)

	return res, nil
}

func (f *Finder) parseLinks(ctx context.Context, inp io.Reader) (int64, bool, error) {
	doc, err := goquery.NewDocumentFromReader(inp)
	if err != nil {
		return 0, false, fmt.Errorf("data cannot be parsed as HTML: %w", err)
	}

	var (
		found int64
		ok    bool
	)
	doc.Find("a[href]").EachWithBreak(func(idx int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		match := idPattern.FindStringSubmatch(href)
		if match == nil {
			return true
		}

		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			f.log.WarnContext(ctx, "link has an invalid identifier", "index", idx, "href", href, "error", err)
			return true
		}

		f.log.DebugContext(ctx, "Discovered upcoming listing", "id", id, "href", href)
		found, ok = id, true
		return false
	})

	return found, ok, nil
}
