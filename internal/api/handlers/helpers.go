// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/lumen/internal/domain"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON sends a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondDomainError maps the error taxonomy onto HTTP statuses: NotFound is
// a 404, AccessDenied a 503 with a retry hint, everything else a 500.
func RespondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		RespondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrAccessDenied):
		w.Header().Set("Retry-After", "5")
		RespondError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		log.Error().Err(err).Msg("request failed")
		RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// queryBool parses a boolean query parameter with a default.
func queryBool(r *http.Request, key string, def bool) bool {
	switch r.URL.Query().Get(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}
