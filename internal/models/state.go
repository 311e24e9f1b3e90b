package models

import "time"

// TrackedListing is the upcoming listing followed through its early access phase.
type TrackedListing struct {
	ID int64 `json:"id"`
	// Status is the last observed status; empty until the listing has been looked up once.
	Status Status `json:"status,omitempty"`
	// Stock is the last observed stock; nil until a stock change has been recorded.
	Stock *int `json:"stock,omitempty"`
}

// State - the complete reconciliation state persisted between cycles.
type State struct {
	PreviousActive   []Listing       `json:"previousActive"`
	PreviousUpcoming []Listing       `json:"previousUpcoming"`
	Tracked          *TrackedListing `json:"tracked,omitempty"`
	LastDigest       *time.Time      `json:"lastDigest,omitempty"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	// PendingFlags are the threshold flags raised by the cycle that produced this state.
	// They are applied again before the next cycle in case writing them failed.
	PendingFlags []ThresholdFlag `json:"pendingFlags,omitempty"`
}

// ThresholdFlag identifies a low-stock alert raised for a listing.
type ThresholdFlag struct {
	Title     string `json:"title"`
	Threshold int    `json:"threshold"`
}

// Fresh reports whether the state was never produced by a committed cycle.
func (s *State) Fresh() bool {
	return s.UpdatedAt.IsZero()
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := &State{
		PreviousActive:   append([]Listing(nil), s.PreviousActive...),
		PreviousUpcoming: append([]Listing(nil), s.PreviousUpcoming...),
		UpdatedAt:        s.UpdatedAt,
		PendingFlags:     append([]ThresholdFlag(nil), s.PendingFlags...),
	}
	if s.Tracked != nil {
		tracked := *s.Tracked
		if s.Tracked.Stock != nil {
			stock := *s.Tracked.Stock
			tracked.Stock = &stock
		}
		out.Tracked = &tracked
	}
	if s.LastDigest != nil {
		last := *s.LastDigest
		out.LastDigest = &last
	}
	return out
}

// StockRecord is one entry of a listing's stock history.
type StockRecord struct {
	Time  time.Time
	Stock int
}
