package models

// Status is the lifecycle status reported by the catalog for a listing.
type Status string

const (
	StatusActive   Status = "active"
	StatusUpcoming Status = "upcoming"
)

// Listing is one limited edition as reported by the catalog.
type Listing struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Status    Status `json:"status"`
	Stock     int    `json:"stock"`
	Size      int    `json:"size"`
	StartDate string `json:"startDate,omitempty"`
	ImageURL  string `json:"imageURL,omitempty"`
}

// Metadata holds the immutable catalog fields of a listing, written once when it is first seen.
type Metadata struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Size      int    `json:"size"`
	StartDate string `json:"startDate,omitempty"`
	ImageURL  string `json:"imageURL,omitempty"`
}

// Metadata returns the listing without its volatile fields (status, stock).
func (l Listing) Metadata() Metadata {
	return Metadata{
		ID:        l.ID,
		Title:     l.Title,
		Size:      l.Size,
		StartDate: l.StartDate,
		ImageURL:  l.ImageURL,
	}
}
