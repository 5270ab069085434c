package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"carteira/internal/domain/account"
	"carteira/internal/domain/card"
	"carteira/internal/domain/invoice"
	"carteira/internal/shared/middleware"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors to status codes. Unexpected errors are
// logged and answered with fallback.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var ve *invoice.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, ve.Msg)
	case errors.Is(err, invoice.ErrNotFound),
		errors.Is(err, card.ErrCardNotFound),
		errors.Is(err, account.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, invoice.ErrForbidden),
		errors.Is(err, card.ErrForbidden),
		errors.Is(err, account.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, invoice.ErrConflict):
		writeError(w, http.StatusConflict, "The invoice was changed concurrently, retry")
	case errors.Is(err, invoice.ErrInvalidInput),
		errors.Is(err, card.ErrInvalidInput),
		errors.Is(err, account.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		userID, _ := middleware.UserIDFromContext(r.Context())
		log.Error().Err(err).Int64("user_id", userID).Str("path", r.URL.Path).Msg(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// requireUser reads the user set by middleware.UserID.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return userID, true
}
