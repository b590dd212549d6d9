package api

import (
	"net/http"

	"github.com/solaius/pallet-registry/pkg/lifecycle"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

// ListByStatusHandler lists the pallets awaiting one workflow: inventory,
// destruction, return or production exit.
func ListByStatusHandler(d Deps, status pallet.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := d.Engine.Repository().ListByStatus(r.Context(), status)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

type batchRequest struct {
	Items []lifecycle.Item `json:"items"`
}

// ValidateBatchHandler handles POST /inventaire/valider and
// POST /sorties/{kind}/valider. Skipped items do not fail the request; the
// response lists the outcome of each.
func ValidateBatchHandler(d Deps, operation lifecycle.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		if len(req.Items) == 0 {
			writeError(w, http.StatusBadRequest, "items must not be empty")
			return
		}
		result, err := d.Engine.ValidateBatch(r.Context(), operator(r), operation, req.Items)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
