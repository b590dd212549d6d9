package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solaius/pallet-registry/pkg/lifecycle"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

// GetPalletHandler handles GET /palettes/{num}
func GetPalletHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := getPallet(r, d, chi.URLParam(r, "num"))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// StatusHistoryHandler handles GET /palettes/{num}/statuts
func StatusHistoryHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := d.Engine.Repository().StatusHistory(r.Context(), chi.URLParam(r, "num"))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// MovementHistoryHandler handles GET /palettes/{num}/mouvements
func MovementHistoryHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := d.Engine.Repository().MovementHistory(r.Context(), chi.URLParam(r, "num"))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// NextNumberHandler handles GET /palettes:next-number
func NextNumberHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := d.Engine.Repository().NextNumber(r.Context())
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"numPalette": n})
	}
}

// RegisterHandler handles POST /palettes
func RegisterHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg lifecycle.Registration
		if err := decodeJSON(r, &reg); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		p, err := d.Engine.Register(r.Context(), operator(r), reg)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

type intakeRequest struct {
	Number   string `json:"numPalette"`
	Location string `json:"emplacement"`
	Reason   string `json:"motif,omitempty"`
}

// IntakeHandler handles POST /entree
func IntakeHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req intakeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		if err := d.Engine.Intake(r.Context(), operator(r), req.Number, req.Location, req.Reason); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeCurrent(w, r, d, req.Number)
	}
}

// UpdateLocationHandler handles PATCH /emplacements/palette
func UpdateLocationHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req intakeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		if req.Reason != "" {
			writeError(w, http.StatusBadRequest, "motif is only accepted on intake")
			return
		}
		if err := d.Engine.UpdateLocation(r.Context(), operator(r), req.Number, req.Location); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeCurrent(w, r, d, req.Number)
	}
}

// writeCurrent responds with the pallet as stored after a write.
func writeCurrent(w http.ResponseWriter, r *http.Request, d Deps, number string) {
	p, err := getPallet(r, d, number)
	if err != nil {
		writeErr(w, d.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func getPallet(r *http.Request, d Deps, number string) (*pallet.Pallet, error) {
	number = strings.TrimSpace(number)
	p, err := d.Engine.Repository().Get(r.Context(), number)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, pallet.PalletNotFound(number)
	}
	return p, nil
}

// ListLocationsHandler handles GET /emplacements
// Query params: etat (Libre or Occupé)
func ListLocationsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := pallet.LocationState(r.URL.Query().Get("etat"))
		switch state {
		case "", pallet.LocationFree, pallet.LocationOccupied:
		default:
			writeError(w, http.StatusBadRequest, "etat must be "+string(pallet.LocationFree)+" or "+string(pallet.LocationOccupied))
			return
		}
		locs, err := d.Engine.Repository().ListLocations(r.Context(), state)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, locs)
	}
}

// SearchHandler handles GET /consultation
// Query params: numPalette, nomClient, article, emplacement, statut, filter, limit
func SearchHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status, err := statusParam(r, "statut")
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		limit, err := intParam(r, "limit", 500)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		pallets, err := d.Engine.Repository().Search(r.Context(), pallet.SearchFilter{
			Number:   q.Get("numPalette"),
			Client:   q.Get("nomClient"),
			Article:  q.Get("article"),
			Location: q.Get("emplacement"),
			Status:   status,
			Expr:     q.Get("filter"),
			Limit:    limit,
		})
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, pallets)
	}
}

// StatsHandler handles GET /stats. Every status is listed, with zero when
// no pallet is in it.
func StatsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := d.Engine.Repository().CountByStatus(r.Context())
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		type statusCount struct {
			Status pallet.Status `json:"statut"`
			Count  int64         `json:"total"`
		}
		out := make([]statusCount, 0, len(pallet.AllStatuses))
		var total int64
		for _, s := range pallet.AllStatuses {
			out = append(out, statusCount{Status: s, Count: counts[s]})
			total += counts[s]
		}
		writeJSON(w, http.StatusOK, map[string]any{"statuts": out, "total": total})
	}
}

// AlertsHandler handles GET /alertes
// Query params: days (default 60)
func AlertsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := intParam(r, "days", int(d.Inactivity.Hours()/24))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		cutoff := d.Clock().AddDate(0, 0, -days)
		pallets, err := d.Engine.Repository().ListInactive(r.Context(), cutoff)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"days":     days,
			"cutoff":   cutoff,
			"palettes": pallets,
		})
	}
}

// ClientsHandler handles GET /clients
func ClientsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clients, err := d.Engine.Repository().Clients(r.Context())
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, clients)
	}
}

// ArticlesHandler handles GET /clients/{client}/articles
func ArticlesHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		articles, err := d.Engine.Repository().Articles(r.Context(), chi.URLParam(r, "client"))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, articles)
	}
}
