package lifecycle

import (
	"math"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

// Outcome is the per-item result of a batch validation.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
)

// SkipReason says why a batch item was not applied.
type SkipReason string

const (
	SkipNotFound          SkipReason = "not_found"
	SkipInvalidQuantity   SkipReason = "invalid_quantity"
	SkipInvalidTransition SkipReason = "invalid_transition"
	SkipInvalidStatus     SkipReason = "invalid_status"
	SkipLocationOccupied  SkipReason = "location_occupied"
)

// Item is one entry of a batch validation. Exit validations only read
// Number and Quantity; inventory validation also reads Status and Location.
type Item struct {
	Number   string   `json:"numPalette"`
	Quantity *float64 `json:"quantite,omitempty"`
	Status   string   `json:"statut,omitempty"`
	Location string   `json:"emplacement,omitempty"`
}

// quantity returns the requested quantity as an int, or ok=false when it is
// negative, fractional or not a number.
func (it Item) quantity() (q *int, ok bool) {
	if it.Quantity == nil {
		return nil, true
	}
	v := *it.Quantity
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return nil, false
	}
	n := int(v)
	return &n, true
}

// ItemOutcome reports what happened to one batch item.
type ItemOutcome struct {
	Index   int           `json:"index"`
	Number  string        `json:"numPalette"`
	Outcome Outcome       `json:"outcome"`
	Reason  SkipReason    `json:"reason,omitempty"`
	Detail  string        `json:"detail,omitempty"`
	Status  pallet.Status `json:"statut,omitempty"`
}

// Applied reports whether the item was written.
func (o ItemOutcome) Applied() bool {
	return o.Outcome == OutcomeApplied
}

// BatchResult is the result of one batch call. Applied is the aggregate
// count; Outcomes lists every item in submission order.
type BatchResult struct {
	Applied  int           `json:"applied"`
	Skipped  int           `json:"skipped"`
	Outcomes []ItemOutcome `json:"outcomes"`
}

func skipped(reason SkipReason, detail string) ItemOutcome {
	return ItemOutcome{Outcome: OutcomeSkipped, Reason: reason, Detail: detail}
}
