// Package catalog fetches limited-edition listings from the remote catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/go-resty/resty/v2"

	"github.com/Houeta/edition-tracker/internal/models"
)

var (
	// ErrFetchFailure marks a failed bulk snapshot fetch; the cycle must be aborted.
	ErrFetchFailure = errors.New("catalog fetch failed")
	// ErrLookupFailure marks a failed individual listing lookup; only that listing is skipped.
	ErrLookupFailure = errors.New("listing lookup failed")
)

// Settings configures the catalog client.
type Settings struct {
	URL        string
	Timeout    time.Duration
	Attempts   uint
	RetryDelay time.Duration
}

// Client talks to the catalog API.
type Client struct {
	log      *slog.Logger
	http     *resty.Client
	url      string
	attempts uint
	delay    time.Duration
}

// NewClient creates a catalog client.
func NewClient(log *slog.Logger, settings Settings) *Client {
	attempts := settings.Attempts
	if attempts == 0 {
		attempts = 1
	}

	client := resty.New().
		SetTimeout(settings.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; GoHttpClient/1.0)")

	return &Client{
		log:      log,
		http:     client,
		url:      strings.TrimRight(settings.URL, "/"),
		attempts: attempts,
		delay:    settings.RetryDelay,
	}
}

// FetchSnapshot returns every active and upcoming listing of the catalog.
func (c *Client) FetchSnapshot(ctx context.Context) ([]models.Listing, error) {
	const opn = "catalog.FetchSnapshot"

	var payload struct {
		Data []apiListing `json:"data"`
	}
	if err := c.getJSON(ctx, c.url, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailure, opn, err)
	}

	listings := make([]models.Listing, 0, len(payload.Data))
	for _, item := range payload.Data {
		listing := item.toModel()
		if listing.Status != models.StatusActive && listing.Status != models.StatusUpcoming {
			c.log.WarnContext(ctx, "Skipping listing with unknown status",
				"op", opn, "id", listing.ID, "title", listing.Title, "status", listing.Status)
			continue
		}
		listings = append(listings, listing)
	}
	c.log.InfoContext(ctx, "Successfully fetched catalog snapshot", "op", opn, "count", len(listings))

	return listings, nil
}

// FetchListing looks up one listing by its catalog identifier.
func (c *Client) FetchListing(ctx context.Context, id int64) (*models.Listing, error) {
	const opn = "catalog.FetchListing"

	var payload struct {
		Data *apiListing `json:"data"`
	}
	if err := c.getJSON(ctx, c.url+"/"+strconv.FormatInt(id, 10), &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: id %d: %w", ErrLookupFailure, opn, id, err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: %s: id %d: empty response", ErrLookupFailure, opn, id)
	}

	listing := payload.Data.toModel()
	return &listing, nil
}

// getJSON performs a GET request with retries and decodes the JSON body into dst.
// Client errors (4xx) are not retried.
func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	var body []byte

	err := retry.Do(
		func() error {
			c.log.DebugContext(ctx, "Send request", "method", http.MethodGet, "URL", url)

			resp, err := c.http.R().SetContext(ctx).Get(url)
			if err != nil {
				return fmt.Errorf("failed to request %s: %w", url, err)
			}

			status := resp.StatusCode()
			if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
				return retry.Unrecoverable(fmt.Errorf("status code error: [%d] %s", status, resp.Status()))
			}
			if status != http.StatusOK {
				return fmt.Errorf("status code error: [%d] %s", status, resp.Status())
			}

			body = resp.Body()
			return nil
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxJitter(c.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			c.log.InfoContext(ctx, "Retrying catalog request after error", "attempt", n, "URL", url, "error", retryErr)
		}),
	)
	if err != nil {
		return err
	}

	if err = json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("data cannot be parsed as JSON: %w", err)
	}

	return nil
}

// apiListing mirrors one element of the catalog API's "data" field.
type apiListing struct {
	ItemCollectionID int64  `json:"itemCollectionId"`
	Title            string `json:"title"`
	Edition          struct {
		Status    string `json:"status"`
		Available int    `json:"available"`
		Size      int    `json:"size"`
		StartDate string `json:"startDate"`
	} `json:"edition"`
	Images struct {
		Main struct {
			URL string `json:"url"`
		} `json:"main"`
	} `json:"images"`
}

func (a *apiListing) toModel() models.Listing {
	return models.Listing{
		ID:        a.ItemCollectionID,
		Title:     a.Title,
		Status:    models.Status(a.Edition.Status),
		Stock:     a.Edition.Available,
		Size:      a.Edition.Size,
		StartDate: a.Edition.StartDate,
		ImageURL:  a.Images.Main.URL,
	}
}
