// Package tracker runs one reconciliation cycle end to end.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Houeta/edition-tracker/internal/models"
	"github.com/Houeta/edition-tracker/internal/services/reconciler"
)

// Catalog fetches the bulk catalog snapshot.
type Catalog interface {
	FetchSnapshot(ctx context.Context) ([]models.Listing, error)
}

// Reconciler classifies a snapshot against the previous state.
type Reconciler interface {
	Reconcile(ctx context.Context, snapshot []models.Listing, prev *models.State, now time.Time) (*reconciler.Result, error)
}

// Gate decides whether the regular digest is due.
type Gate interface {
	ShouldEmit(now time.Time, last *time.Time) bool
}

// Repository persists the outcome of a cycle.
type Repository interface {
	LoadState(ctx context.Context) *models.State
	SaveState(ctx context.Context, state *models.State) error
	AppendHistory(ctx context.Context, title string, rec models.StockRecord) error
	SetThresholdFlag(ctx context.Context, title string, threshold int) error
	SaveMetadata(ctx context.Context, meta models.Metadata) error
}

// Tracker is an orchestrator that performs a full reconciliation cycle.
type Tracker struct {
	log     *slog.Logger
	catalog Catalog
	engine  Reconciler
	gate    Gate
	repo    Repository
}

// NewTracker creates a new Tracker instance.
func NewTracker(log *slog.Logger, catalog Catalog, engine Reconciler, gate Gate, repo Repository) *Tracker {
	return &Tracker{log: log, catalog: catalog, engine: engine, gate: gate, repo: repo}
}

// RunCycle loads the previous state, fetches the catalog, reconciles and commits the
// result. The returned digest is nil whenever an error is returned; in that case the
// persisted state is the one of the last successful cycle.
func (t *Tracker) RunCycle(ctx context.Context, now time.Time) (*models.Digest, error) {
	const opn = "tracker.RunCycle"
	log := t.log.With("op", opn)

	// 1. Previous state, empty when absent or unreadable
	prev := t.repo.LoadState(ctx)
	if err := t.applyPendingFlags(ctx, prev); err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	// 2. Bulk snapshot
	log.DebugContext(ctx, "Fetching catalog snapshot")
	snapshot, err := t.catalog.FetchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	// History timestamps must not go backwards across cycles.
	if now.Before(prev.UpdatedAt) {
		log.WarnContext(ctx, "Clock is behind the last committed cycle", "now", now, "last", prev.UpdatedAt)
		now = prev.UpdatedAt.In(now.Location())
	}

	// 3. Reconciliation
	res, err := t.engine.Reconcile(ctx, snapshot, prev, now)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to reconcile: %w", opn, err)
	}

	// 4. Regular digest
	if len(res.Digest.Stock) > 0 && t.gate.ShouldEmit(now, prev.LastDigest) {
		log.InfoContext(ctx, "Regular digest is due")
		res.Digest.Regular = true
		emitted := now
		res.State.LastDigest = &emitted
	}
	res.State.UpdatedAt = now

	// 5. Commit, state last
	if err = t.commit(ctx, res); err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	log.InfoContext(ctx, "Cycle committed", "alerts", res.Digest.HasAlerts(), "regular", res.Digest.Regular)

	return res.Digest, nil
}

// commit writes the cycle's outcome. Saving the state is the commit point: the flags
// raised in this cycle travel inside the state document, so a failure before it leaves
// nothing the engine reads back, and a failure after it is repaired on the next load.
// History rows written before a failed state save may be appended again by the retry.
func (t *Tracker) commit(ctx context.Context, res *reconciler.Result) error {
	for _, meta := range res.Metadata {
		if err := t.repo.SaveMetadata(ctx, meta); err != nil {
			return fmt.Errorf("failed to save metadata: %w", err)
		}
	}

	for _, h := range res.History {
		if err := t.repo.AppendHistory(ctx, h.Title, h.Record); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
	}

	res.State.PendingFlags = res.Flags
	if err := t.repo.SaveState(ctx, res.State); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	for _, f := range res.Flags {
		if err := t.repo.SetThresholdFlag(ctx, f.Title, f.Threshold); err != nil {
			t.log.WarnContext(ctx, "Failed to set threshold flag, it will be applied on the next cycle",
				"title", f.Title, "threshold", f.Threshold, "error", err)
		}
	}

	return nil
}

// applyPendingFlags sets the flags committed with the previous state. Setting a flag
// twice is harmless.
func (t *Tracker) applyPendingFlags(ctx context.Context, state *models.State) error {
	for _, f := range state.PendingFlags {
		if err := t.repo.SetThresholdFlag(ctx, f.Title, f.Threshold); err != nil {
			return fmt.Errorf("failed to apply pending threshold flag: %w", err)
		}
	}

	return nil
}
