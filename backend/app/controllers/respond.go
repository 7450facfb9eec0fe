package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"rynx/backend/app/services"
	"rynx/backend/global"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps service errors onto the status codes agents key their
// behavior on: 402 drives the insufficient-credit path, 404 the no-session
// path, 409 the single-active-session invariant.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, services.ErrUnauthorized):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, services.ErrInsufficientCredit):
		w.WriteHeader(http.StatusPaymentRequired)
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrNotAssigned):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		global.Logger.Error().Err(err).Msg("internal error")
		w.WriteHeader(http.StatusInternalServerError)
	}
}
