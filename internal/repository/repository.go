package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/Houeta/edition-tracker/internal/models"
)

// ErrNotFound is returned by a Store when the requested key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is a key-value document store with append-only stock history logs.
// Keys are slash separated paths such as "state" or "<title>/alerts".
type Store interface {
	// Get returns the document stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put atomically replaces the document stored under key.
	Put(ctx context.Context, key string, value []byte) error
	// Append adds a record to the log stored under key, creating the log when absent.
	Append(ctx context.Context, key string, rec models.StockRecord) error
	// Log returns all records of the log stored under key or ErrNotFound.
	Log(ctx context.Context, key string) ([]models.StockRecord, error)
	// Close releases the resources held by the store.
	Close() error
}

const (
	stateKey         = "state"
	abbreviationsKey = "abbreviations"
	subscriptionsKey = "subscriptions"

	metadataLeaf = "metadata"
	alertsLeaf   = "alerts"
	historyLeaf  = "stockchanges"
)

// Repository exposes typed access to the tracker's persisted data on top of a Store.
type Repository struct {
	store Store
	log   *slog.Logger

	// mu serializes read-modify-write updates of shared documents.
	mu sync.Mutex
}

// New creates a Repository over the given store.
func New(log *slog.Logger, store Store) *Repository {
	return &Repository{store: store, log: log}
}

// Close closes the underlying store.
func (r *Repository) Close() error {
	return r.store.Close()
}

// LoadState returns the persisted reconciliation state. An absent, unreadable or
// malformed document yields an empty state so that a cycle can always bootstrap.
func (r *Repository) LoadState(ctx context.Context) *models.State {
	const opn = "repository.LoadState"
	log := r.log.With("op", opn)

	data, err := r.store.Get(ctx, stateKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.WarnContext(ctx, "State is unreadable, starting from an empty state", "error", err)
		} else {
			log.InfoContext(ctx, "No previous state found, starting from an empty state")
		}
		return &models.State{}
	}

	var state models.State
	if err = json.Unmarshal(data, &state); err != nil {
		log.WarnContext(ctx, "State is malformed, starting from an empty state", "error", err)
		return &models.State{}
	}

	return &state
}

// SaveState replaces the persisted reconciliation state.
func (r *Repository) SaveState(ctx context.Context, state *models.State) error {
	const opn = "repository.SaveState"

	data, err := json.MarshalIndent(state, "", "    ")
	if err != nil {
		return fmt.Errorf("%s: failed to marshal state: %w", opn, err)
	}

	if err = r.store.Put(ctx, stateKey, data); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// AppendHistory appends a stock record to the history of the listing.
func (r *Repository) AppendHistory(ctx context.Context, title string, rec models.StockRecord) error {
	const opn = "repository.AppendHistory"

	if err := r.store.Append(ctx, listingKey(title, historyLeaf), rec); err != nil {
		return fmt.Errorf("%s: failed to append history for %q: %w", opn, title, err)
	}

	return nil
}

// History returns the stock history of the listing.
func (r *Repository) History(ctx context.Context, title string) ([]models.StockRecord, error) {
	const opn = "repository.History"

	records, err := r.store.Log(ctx, listingKey(title, historyLeaf))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return records, nil
}

// ThresholdFlag reports whether a low-stock alert was already raised for the threshold.
func (r *Repository) ThresholdFlag(ctx context.Context, title string, threshold int) (bool, error) {
	const opn = "repository.ThresholdFlag"

	flags, err := r.thresholdFlags(ctx, title)
	if err != nil {
		return false, fmt.Errorf("%s: %w", opn, err)
	}

	return flags[strconv.Itoa(threshold)], nil
}

// SetThresholdFlag marks the threshold as alerted for the listing.
func (r *Repository) SetThresholdFlag(ctx context.Context, title string, threshold int) error {
	const opn = "repository.SetThresholdFlag"

	r.mu.Lock()
	defer r.mu.Unlock()

	flags, err := r.thresholdFlags(ctx, title)
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}
	flags[strconv.Itoa(threshold)] = true

	if err = r.putJSON(ctx, listingKey(title, alertsLeaf), flags); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

func (r *Repository) thresholdFlags(ctx context.Context, title string) (map[string]bool, error) {
	flags := make(map[string]bool)
	data, err := r.store.Get(ctx, listingKey(title, alertsLeaf))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return flags, nil
		}
		return nil, err
	}
	if err = json.Unmarshal(data, &flags); err != nil {
		r.log.WarnContext(ctx, "Threshold flags are malformed, treating as unset", "title", title, "error", err)
		return make(map[string]bool), nil
	}
	return flags, nil
}

// SaveMetadata stores the metadata of a listing unless it was stored before.
func (r *Repository) SaveMetadata(ctx context.Context, meta models.Metadata) error {
	const opn = "repository.SaveMetadata"
	key := listingKey(meta.Title, metadataLeaf)

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.store.Get(ctx, key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", opn, err)
	}

	if err = r.putJSON(ctx, key, meta); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}
	r.log.DebugContext(ctx, "Stored metadata of a new listing", "op", opn, "title", meta.Title)

	return nil
}

// Metadata returns the stored metadata of a listing.
func (r *Repository) Metadata(ctx context.Context, title string) (*models.Metadata, error) {
	const opn = "repository.Metadata"

	var meta models.Metadata
	if err := r.getJSON(ctx, listingKey(title, metadataLeaf), &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return &meta, nil
}

// Abbreviations returns the mapping of lowercase abbreviations to listing titles.
func (r *Repository) Abbreviations(ctx context.Context) (map[string]string, error) {
	const opn = "repository.Abbreviations"

	abbr := make(map[string]string)
	if err := r.getJSON(ctx, abbreviationsKey, &abbr); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return abbr, nil
}

// AddAbbreviation maps an abbreviation to a title. Titles without stored metadata are
// rejected with ErrNotFound.
func (r *Repository) AddAbbreviation(ctx context.Context, abbreviation, title string) error {
	const opn = "repository.AddAbbreviation"

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.Get(ctx, listingKey(title, metadataLeaf)); err != nil {
		return fmt.Errorf("%s: unknown title %q: %w", opn, title, err)
	}

	abbr, err := r.Abbreviations(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}
	abbr[strings.ToLower(abbreviation)] = title

	if err = r.putJSON(ctx, abbreviationsKey, abbr); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// ResolveTitle returns the title for an abbreviation, or the input when it is not one.
func (r *Repository) ResolveTitle(ctx context.Context, name string) string {
	abbr, err := r.Abbreviations(ctx)
	if err != nil {
		r.log.WarnContext(ctx, "Failed to read abbreviations", "op", "repository.ResolveTitle", "error", err)
		return name
	}
	if title, ok := abbr[strings.ToLower(name)]; ok {
		return title
	}
	return name
}

// SubscribeChat adds the chat ID to the subscriptions.
func (r *Repository) SubscribeChat(ctx context.Context, chatID int64) error {
	const opn = "repository.SubscribeChat"

	r.mu.Lock()
	defer r.mu.Unlock()

	chats, err := r.GetSubscribedChats(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}
	if slices.Contains(chats, chatID) {
		return nil
	}

	if err = r.putJSON(ctx, subscriptionsKey, append(chats, chatID)); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// UnsubscribeChat deletes the chat ID from the subscriptions.
func (r *Repository) UnsubscribeChat(ctx context.Context, chatID int64) error {
	const opn = "repository.UnsubscribeChat"

	r.mu.Lock()
	defer r.mu.Unlock()

	chats, err := r.GetSubscribedChats(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	remaining := slices.DeleteFunc(chats, func(id int64) bool { return id == chatID })
	if err = r.putJSON(ctx, subscriptionsKey, remaining); err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	return nil
}

// GetSubscribedChats returns a slice of all subscribed chat IDs.
func (r *Repository) GetSubscribedChats(ctx context.Context) ([]int64, error) {
	const opn = "repository.GetSubscribedChats"

	var chats []int64
	if err := r.getJSON(ctx, subscriptionsKey, &chats); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return chats, nil
}

func (r *Repository) getJSON(ctx context.Context, key string, dst any) error {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return nil
}

func (r *Repository) putJSON(ctx context.Context, key string, value any) error {
	data, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	return r.store.Put(ctx, key, data)
}

var titleReplacer = strings.NewReplacer("/", "_", "\\", "_")

// listingKey builds the key of a per-listing document, one directory per title.
func listingKey(title, leaf string) string {
	dir := titleReplacer.Replace(title)
	if dir == "" || dir == "." || dir == ".." {
		dir = "_" + dir
	}
	return dir + "/" + leaf
}
