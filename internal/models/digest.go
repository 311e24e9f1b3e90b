package models

// Alerts groups the classified state changes of one cycle, keyed by listing title.
type Alerts struct {
	EarlyAccessOver map[string]int `json:"ea_over"`
	Back            map[string]int `json:"back"`
	SoldOut         map[string]int `json:"sold_out"`
	StockLevel      map[string]int `json:"stock_level"`
}

// Reveal announces a newly revealed upcoming listing.
type Reveal struct {
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
	Image     string `json:"image"`
}

// Digest - the structured output of one reconciliation cycle.
type Digest struct {
	Stock        map[string]int `json:"stock"`
	Alert        Alerts         `json:"alert"`
	NextUpcoming *Reveal        `json:"next_upcoming_LE,omitempty"`
	// Regular is set when a scheduled stock summary is due this cycle.
	Regular bool `json:"regular"`
}

// NewDigest returns a digest with every section initialised and empty.
func NewDigest() *Digest {
	return &Digest{
		Stock: make(map[string]int),
		Alert: Alerts{
			EarlyAccessOver: make(map[string]int),
			Back:            make(map[string]int),
			SoldOut:         make(map[string]int),
			StockLevel:      make(map[string]int),
		},
	}
}

// HasAlerts reports whether any alert category is populated.
func (d *Digest) HasAlerts() bool {
	return len(d.Alert.EarlyAccessOver)+len(d.Alert.Back)+len(d.Alert.SoldOut)+len(d.Alert.StockLevel) > 0
}
