// Package handlers provides HTTP handlers for the risk API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// domainError maps domain sentinel errors onto HTTP status codes.
func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, risk.ErrNotFound):
		jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, risk.ErrInvalidState):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, risk.ErrInactiveModel):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case risk.IsMissingFeature(err):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}
