package pallet

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Status is the lifecycle stage of a pallet. Values are the labels stored in
// the Statut columns and must not change.
type Status string

const (
	StatusInStock      Status = "En stock"
	StatusToInventory  Status = "A Inventorier"
	StatusToDestroy    Status = "A Détruire"
	StatusDestroyed    Status = "Détruite"
	StatusToReturn     Status = "A Renvoyer"
	StatusReturned     Status = "Renvoyé"
	StatusInProduction Status = "En prod"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{
	StatusInStock,
	StatusToInventory,
	StatusToDestroy,
	StatusDestroyed,
	StatusToReturn,
	StatusReturned,
	StatusInProduction,
}

// statusNames maps the English identifiers used by API clients to labels.
var statusNames = map[string]Status{
	"instock":      StatusInStock,
	"toinventory":  StatusToInventory,
	"todestroy":    StatusToDestroy,
	"destroyed":    StatusDestroyed,
	"toreturn":     StatusToReturn,
	"returned":     StatusReturned,
	"inproduction": StatusInProduction,
}

// ReleaseStatuses are the states in which a pallet has physically left the
// warehouse and no longer holds a location.
var ReleaseStatuses = mapset.NewThreadUnsafeSet(StatusDestroyed, StatusReturned, StatusInProduction)

// TerminalStatuses are eligible for archival once aged out.
var TerminalStatuses = []Status{StatusDestroyed, StatusInProduction, StatusReturned}

// Name returns the English identifier of the status ("InStock", ...).
func (s Status) Name() string {
	switch s {
	case StatusInStock:
		return "InStock"
	case StatusToInventory:
		return "ToInventory"
	case StatusToDestroy:
		return "ToDestroy"
	case StatusDestroyed:
		return "Destroyed"
	case StatusToReturn:
		return "ToReturn"
	case StatusReturned:
		return "Returned"
	case StatusInProduction:
		return "InProduction"
	}
	return string(s)
}

// Valid reports whether s is one of the defined labels.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Releases reports whether entering s frees the pallet's location.
func (s Status) Releases() bool {
	return ReleaseStatuses.Contains(s)
}

// ParseStatus accepts a stored label or an English identifier, ignoring case,
// and returns the canonical label. "En Prod" is accepted as written by older
// clients.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", &ValidationError{Field: "status", Message: "status is required"}
	}
	for _, s := range AllStatuses {
		if strings.EqualFold(v, string(s)) {
			return s, nil
		}
	}
	if s, ok := statusNames[strings.ToLower(v)]; ok {
		return s, nil
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", v)}
}

// ParseStatuses parses a list of labels into a set.
func ParseStatuses(values []string) (mapset.Set[Status], error) {
	set := mapset.NewSet[Status]()
	for _, v := range values {
		s, err := ParseStatus(v)
		if err != nil {
			return nil, err
		}
		set.Add(s)
	}
	return set, nil
}

// LocationState is the occupancy of a warehouse slot.
type LocationState string

const (
	LocationFree     LocationState = "Libre"
	LocationOccupied LocationState = "Occupé"
)

// Movement zones recorded in MVT_Palette.
const (
	ZoneWarehouse = "Entrepôt"
	ZoneDestroyed = "Détruit"
	ZoneReturned  = "Renvoyé"
	ZoneWorkshop  = "Atelier"
)
