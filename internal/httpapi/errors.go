package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/memscreen/memscreend/internal/apperr"
)

// respondJSON writes payload as the response body with status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes the {detail: "..."} shape spec §6 defines, mapping err
// to a status via statusFromError.
func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFromError(err), map[string]string{"detail": err.Error()})
}

// statusFromError maps the closed apperr.Kind taxonomy to the HTTP status
// table in spec §6/§7, in one place.
func statusFromError(err error) int {
	switch apperr.KindOf(err) {
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.NotFound, apperr.TargetGone:
		return http.StatusNotFound
	case apperr.Busy, apperr.ConstraintViolation:
		return http.StatusConflict
	case apperr.RuntimeUnavailable, apperr.EncoderUnavailable, apperr.StorageUnavailable, apperr.Internal:
		return http.StatusInternalServerError
	case apperr.Cancelled:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
}
