// Package reconciler compares a fresh catalog snapshot with the previous cycle's state
// and classifies the transitions into digest alerts, history records and flag updates.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Houeta/edition-tracker/internal/models"
)

// DefaultThreshold is the low-stock level alerted on when none is configured.
const DefaultThreshold = 100

// ListingLookup fetches a single listing by its catalog identifier.
type ListingLookup interface {
	FetchListing(ctx context.Context, id int64) (*models.Listing, error)
}

// FlagReader reports whether a low-stock alert was already raised for a threshold.
type FlagReader interface {
	ThresholdFlag(ctx context.Context, title string, threshold int) (bool, error)
}

// Discoverer finds the identifier of the next upcoming listing out of band.
type Discoverer interface {
	DiscoverUpcomingID(ctx context.Context) (int64, bool, error)
}

// Settings configures the weekday-dependent behaviour and the alert thresholds.
type Settings struct {
	// TriggerWeekday is the day on which the tracked upcoming listing is refreshed every cycle.
	TriggerWeekday time.Weekday
	// DiscoveryWeekday is the day on which a missing tracked listing is discovered.
	DiscoveryWeekday time.Weekday
	// Thresholds are the low-stock levels; DefaultThreshold when empty.
	Thresholds []int
}

// HistoryAppend is a stock record to append to a listing's history.
type HistoryAppend struct {
	Title  string
	Record models.StockRecord
}

// FlagUpdate is a threshold flag to set for a listing.
type FlagUpdate = models.ThresholdFlag

// Result is everything a cycle has to commit and deliver.
type Result struct {
	Digest   *models.Digest
	State    *models.State
	History  []HistoryAppend
	Flags    []FlagUpdate
	Metadata []models.Metadata
}

// Engine performs the reconciliation of one cycle.
type Engine struct {
	log        *slog.Logger
	lookup     ListingLookup
	flags      FlagReader
	discoverer Discoverer
	settings   Settings
}

// NewEngine creates an Engine. The discoverer may be nil when discovery is disabled.
func NewEngine(
	log *slog.Logger,
	lookup ListingLookup,
	flags FlagReader,
	discoverer Discoverer,
	settings Settings,
) *Engine {
	thresholds := slices.Clone(settings.Thresholds)
	if len(thresholds) == 0 {
		thresholds = []int{DefaultThreshold}
	}
	slices.Sort(thresholds)
	settings.Thresholds = slices.Compact(thresholds)

	return &Engine{log: log, lookup: lookup, flags: flags, discoverer: discoverer, settings: settings}
}

// cycle holds the working data of one Reconcile call.
type cycle struct {
	now     time.Time
	state   *models.State
	result  *Result
	flagged map[FlagUpdate]bool
}

func (c *cycle) record(title string, stock int) {
	c.result.History = append(c.result.History, HistoryAppend{
		Title:  title,
		Record: models.StockRecord{Time: c.now, Stock: stock},
	})
}

// Reconcile compares the snapshot with the previous state. The given state is not
// modified; the updated state is part of the result. Only a failure to read the
// threshold flags aborts the reconciliation; failed lookups skip the affected listing.
func (e *Engine) Reconcile(
	ctx context.Context,
	snapshot []models.Listing,
	prev *models.State,
	now time.Time,
) (*Result, error) {
	const opn = "reconciler.Reconcile"
	log := e.log.With("op", opn)

	c := &cycle{
		now:     now,
		state:   prev.Clone(),
		result:  &Result{Digest: models.NewDigest()},
		flagged: make(map[FlagUpdate]bool),
	}

	e.bootstrapTracked(ctx, c)

	var active, upcoming []models.Listing
	for _, l := range snapshot {
		switch l.Status {
		case models.StatusActive:
			active = append(active, l)
		case models.StatusUpcoming:
			upcoming = append(upcoming, l)
		}
	}

	// The tracked listing is expected to turn active; if it did not, it is looked up
	// individually even outside the trigger weekday.
	lookupRequired := false
	if c.state.Tracked != nil && trackedStatus(c.state.Tracked) == models.StatusUpcoming {
		lookupRequired = !containsID(active, c.state.Tracked.ID)
	}

	if err := e.reconcileActive(ctx, c, active); err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	e.detectSellouts(ctx, c, active)

	if now.Weekday() == e.settings.TriggerWeekday || lookupRequired {
		e.refreshTracked(ctx, c)
	}

	e.detectReveals(ctx, c, upcoming, prev.Fresh())

	c.state.PreviousActive = active
	c.state.PreviousUpcoming = upcoming
	c.result.State = c.state

	d := c.result.Digest
	log.InfoContext(ctx, "Reconciliation complete",
		"active", len(active),
		"upcoming", len(upcoming),
		"ea_over", len(d.Alert.EarlyAccessOver),
		"back", len(d.Alert.Back),
		"sold_out", len(d.Alert.SoldOut),
		"stock_level", len(d.Alert.StockLevel),
		"history", len(c.result.History))

	return c.result, nil
}

// bootstrapTracked adopts a discovered upcoming listing on the discovery weekday.
func (e *Engine) bootstrapTracked(ctx context.Context, c *cycle) {
	if c.state.Tracked != nil || e.discoverer == nil || c.now.Weekday() != e.settings.DiscoveryWeekday {
		return
	}

	id, ok, err := e.discoverer.DiscoverUpcomingID(ctx)
	if err != nil {
		e.log.WarnContext(ctx, "Failed to discover the upcoming listing", "error", err)
		return
	}
	if !ok {
		e.log.InfoContext(ctx, "No upcoming listing announced yet")
		return
	}

	e.log.InfoContext(ctx, "Tracking upcoming listing", "id", id)
	c.state.Tracked = &models.TrackedListing{ID: id}
}

// reconcileActive classifies every currently active listing.
func (e *Engine) reconcileActive(ctx context.Context, c *cycle, active []models.Listing) error {
	previous := make(map[int64]models.Listing, len(c.state.PreviousActive))
	for _, l := range c.state.PreviousActive {
		previous[l.ID] = l
	}

	d := c.result.Digest
	for _, l := range active {
		c.result.Metadata = append(c.result.Metadata, l.Metadata())
		d.Stock[l.Title] = l.Stock

		old, seen := previous[l.ID]
		if !seen {
			if c.state.Tracked != nil && c.state.Tracked.ID == l.ID {
				e.log.InfoContext(ctx, "Early access phase over", "title", l.Title, "stock", l.Stock)
				d.Alert.EarlyAccessOver[l.Title] = l.Stock
				c.state.Tracked = nil
			} else {
				e.log.InfoContext(ctx, "Listing is available again", "title", l.Title, "stock", l.Stock)
				d.Alert.Back[l.Title] = l.Stock
			}
			c.record(l.Title, l.Stock)
			continue
		}

		if l.Stock == old.Stock {
			continue
		}
		e.log.InfoContext(ctx, "Available stock changed", "title", l.Title, "from", old.Stock, "to", l.Stock)
		c.record(l.Title, l.Stock)

		if err := e.checkThresholds(ctx, c, l); err != nil {
			return err
		}
	}

	return nil
}

// checkThresholds raises one stock_level alert for the lowest newly crossed threshold
// and flags every crossed threshold. Flags are never cleared here.
func (e *Engine) checkThresholds(ctx context.Context, c *cycle, l models.Listing) error {
	alerted := false
	for _, threshold := range e.settings.Thresholds {
		if l.Stock >= threshold {
			continue
		}

		update := FlagUpdate{Title: l.Title, Threshold: threshold}
		if c.flagged[update] {
			continue
		}
		set, err := e.flags.ThresholdFlag(ctx, l.Title, threshold)
		if err != nil {
			return fmt.Errorf("failed to read threshold flag %d for %q: %w", threshold, l.Title, err)
		}
		if set {
			continue
		}

		c.flagged[update] = true
		c.result.Flags = append(c.result.Flags, update)
		if !alerted {
			e.log.InfoContext(ctx, "Stock went below threshold", "title", l.Title, "threshold", threshold)
			c.result.Digest.Alert.StockLevel[l.Title] = threshold
			alerted = true
		}
	}

	return nil
}

// detectSellouts resolves every previously active listing that disappeared.
// A failed lookup skips the listing; it is not retried in later cycles.
func (e *Engine) detectSellouts(ctx context.Context, c *cycle, active []models.Listing) {
	for _, old := range c.state.PreviousActive {
		if containsID(active, old.ID) {
			continue
		}

		listing, err := e.lookup.FetchListing(ctx, old.ID)
		if err != nil {
			e.log.WarnContext(ctx, "Skipping sellout of a listing that could not be looked up",
				"id", old.ID, "title", old.Title, "error", err)
			continue
		}

		e.log.InfoContext(ctx, "Listing sold out", "title", listing.Title)
		c.record(listing.Title, 0)
		c.result.Digest.Alert.SoldOut[listing.Title] = 0
	}
}

// refreshTracked looks up the tracked upcoming listing and reports its
// sold-out/back transitions against the last known stock (or its size).
func (e *Engine) refreshTracked(ctx context.Context, c *cycle) {
	tracked := c.state.Tracked
	if tracked == nil {
		return
	}

	listing, err := e.lookup.FetchListing(ctx, tracked.ID)
	if err != nil {
		e.log.WarnContext(ctx, "Failed to refresh the tracked listing", "id", tracked.ID, "error", err)
		return
	}
	c.result.Metadata = append(c.result.Metadata, listing.Metadata())
	tracked.Status = listing.Status

	baseline := listing.Size
	if tracked.Stock != nil {
		baseline = *tracked.Stock
	}
	wasSoldOut := baseline == 0
	isSoldOut := listing.Stock == 0

	d := c.result.Digest
	if !isSoldOut {
		d.Stock[listing.Title] = listing.Stock
	}
	switch {
	case !wasSoldOut && isSoldOut:
		e.log.InfoContext(ctx, "Tracked listing sold out", "title", listing.Title)
		d.Alert.SoldOut[listing.Title] = listing.Stock
	case wasSoldOut && !isSoldOut:
		e.log.InfoContext(ctx, "Tracked listing is available again", "title", listing.Title, "stock", listing.Stock)
		d.Alert.Back[listing.Title] = listing.Stock
	}

	if listing.Stock != baseline {
		c.record(listing.Title, listing.Stock)
		stock := listing.Stock
		tracked.Stock = &stock
	}
}

// detectReveals announces upcoming listings whose title was not upcoming before.
// Only the last one is kept. Nothing is announced on a fresh state.
func (e *Engine) detectReveals(ctx context.Context, c *cycle, upcoming []models.Listing, fresh bool) {
	if fresh {
		return
	}

	previous := make(map[string]bool, len(c.state.PreviousUpcoming))
	for _, l := range c.state.PreviousUpcoming {
		previous[l.Title] = true
	}

	for _, l := range upcoming {
		if previous[l.Title] {
			continue
		}
		e.log.InfoContext(ctx, "Next upcoming listing revealed", "title", l.Title)
		c.result.Digest.NextUpcoming = &models.Reveal{Title: l.Title, StartDate: l.StartDate, Image: l.ImageURL}
		c.result.Metadata = append(c.result.Metadata, l.Metadata())
	}
}

func trackedStatus(t *models.TrackedListing) models.Status {
	if t.Status == "" {
		return models.StatusUpcoming
	}
	return t.Status
}

func containsID(listings []models.Listing, id int64) bool {
	return slices.ContainsFunc(listings, func(l models.Listing) bool { return l.ID == id })
}
