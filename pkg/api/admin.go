package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/solaius/pallet-registry/pkg/archive"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

// ChangeStatusHandler handles POST /admin/statut
func ChangeStatusHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Number string `json:"numPalette"`
			Status string `json:"statut"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		status, err := pallet.ParseStatus(req.Status)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		if err := d.Engine.ChangeStatusDirect(r.Context(), operator(r), req.Number, status); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeCurrent(w, r, d, req.Number)
	}
}

// PurgeHandler handles POST /admin/purge. Omitted fields fall back to the
// archive configuration.
func PurgeHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Statuses      []string `json:"statuts,omitempty"`
			OlderThanDays *int     `json:"olderThanDays,omitempty"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}

		names := d.ArchiveConfig.PurgeStatuses
		if len(req.Statuses) > 0 {
			names = req.Statuses
		}
		statuses, err := pallet.ParseStatuses(names)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		age := d.ArchiveConfig.PurgeAge()
		if req.OlderThanDays != nil {
			if err := archive.ValidatePurgeDays(*req.OlderThanDays); err != nil {
				writeErr(w, d.Logger, err)
				return
			}
			age = archive.PurgeAge(*req.OlderThanDays)
		}

		result, err := d.Archive.Purge(r.Context(), statuses, age)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		d.Logger.Info("purge requested", "operator", operator(r).Name, "archived", result.Archived)
		writeJSON(w, http.StatusOK, result)
	}
}

// RestoreHandler handles POST /admin/restore
func RestoreHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Numbers []string `json:"numbers"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		if len(req.Numbers) == 0 {
			writeError(w, http.StatusBadRequest, "numbers must not be empty")
			return
		}
		result, err := d.Archive.RestoreNumbers(r.Context(), req.Numbers)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		d.Logger.Info("restore requested", "operator", operator(r).Name, "restored", result.Restored)
		writeJSON(w, http.StatusOK, result)
	}
}

// ListArchiveHandler handles GET /admin/archives
// Query params: numPalette, nomClient, statut, limit, format (json or csv)
func ListArchiveHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status, err := statusParam(r, "statut")
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		limit, err := intParam(r, "limit", 0)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		rows, err := d.Archive.ListArchive(r.Context(), pallet.ArchiveFilter{
			Number: q.Get("numPalette"),
			Client: q.Get("nomClient"),
			Status: status,
			Limit:  limit,
		})
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}

		switch q.Get("format") {
		case "", "json":
			writeJSON(w, http.StatusOK, rows)
		case "csv":
			writeCSV(w, d, rows, "archives.csv")
		default:
			writeError(w, http.StatusBadRequest, "format must be json or csv")
		}
	}
}

// ExpiredArchiveHandler handles GET /admin/archives/expired
// Query params: years (retention, default from configuration), format
func ExpiredArchiveHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		years, err := intParam(r, "years", d.ArchiveConfig.RetentionYears)
		if err == nil {
			err = archive.ValidateRetentionYears(years)
		}
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		expired, err := d.Archive.ExpiredArchive(r.Context(), archive.RetentionAge(years))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		if r.URL.Query().Get("format") == "csv" {
			writeCSV(w, d, expired.Rows, archive.ExportName(d.Clock()))
			return
		}
		writeJSON(w, http.StatusOK, expired)
	}
}

type deleteExpiredRequest struct {
	Numbers []string   `json:"numbers,omitempty"`
	Cutoff  *time.Time `json:"cutoff,omitempty"`
	Years   int        `json:"years,omitempty"`
}

// DeleteExpiredHandler handles DELETE /admin/archives/expired.
//
// With numbers and cutoff the listed rows are deleted; the client is
// expected to have exported them first. Without them the server selects,
// exports to its own sink and deletes in one call.
func DeleteExpiredHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deleteExpiredRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}

		if len(req.Numbers) > 0 {
			if req.Cutoff == nil {
				writeError(w, http.StatusBadRequest, "cutoff is required with numbers")
				return
			}
			deleted, err := d.Archive.DeleteArchived(r.Context(), req.Numbers, *req.Cutoff)
			if err != nil {
				writeErr(w, d.Logger, err)
				return
			}
			d.Logger.Info("expired archive rows deleted", "operator", operator(r).Name, "deleted", deleted)
			writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "cutoff": *req.Cutoff})
			return
		}

		if d.Sink == nil {
			writeError(w, http.StatusConflict, "no export sink configured; export the rows and send numbers and cutoff")
			return
		}
		years := req.Years
		if years == 0 {
			years = d.ArchiveConfig.RetentionYears
		}
		if err := archive.ValidateRetentionYears(years); err != nil {
			writeErr(w, d.Logger, err)
			return
		}

		var location string
		confirm := archive.ExportConfirm(d.Sink, d.Clock, func(loc string) { location = loc })
		expired, deleted, err := d.Archive.PurgeArchive(r.Context(), archive.RetentionAge(years), confirm)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		d.Logger.Info("expired archive rows exported and deleted",
			"operator", operator(r).Name, "deleted", deleted, "export", location)
		writeJSON(w, http.StatusOK, map[string]any{
			"deleted": deleted,
			"cutoff":  expired.Cutoff,
			"export":  location,
		})
	}
}

func writeCSV(w http.ResponseWriter, d Deps, rows []pallet.ArchivedPallet, filename string) {
	var buf bytes.Buffer
	if err := archive.WriteCSV(&buf, rows); err != nil {
		writeErr(w, d.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
