package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/solaius/pallet-registry/pkg/auth"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

// maxBodyBytes bounds request bodies; batches of a few thousand items fit.
const maxBodyBytes = 4 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
	Pallet  string `json:"pallet,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: http.StatusText(status), Message: message})
}

// writeErr maps an error category to a status code. Store errors are logged
// and reported without their cause.
func writeErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		te *pallet.TransitionError
		ve *pallet.ValidationError
	)
	switch {
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "invalid_transition",
			Message: te.Message,
			Code:    te.Code,
			Pallet:  te.Pallet,
			From:    string(te.From),
			To:      string(te.To),
		})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Message: ve.Message, Field: ve.Field})
	case errors.Is(err, pallet.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: err.Error()})
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: err.Error()})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
	}
}

// decodeJSON reads a JSON body into v. Unknown fields are rejected; an
// empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &pallet.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// intParam reads a positive integer query parameter, or def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, &pallet.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return v, nil
}

// statusParam parses an optional status query parameter.
func statusParam(r *http.Request, name string) (pallet.Status, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return "", nil
	}
	return pallet.ParseStatus(raw)
}
