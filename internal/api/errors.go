// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/scheduler"
)

// Error codes carried in the "error" field. The rate limiter and the panic
// recoverer use the same body shape.
const (
	codeBadRequest     = "bad_request"
	codeUnknownProgram = "unknown_program"
	codeUnknownRule    = "unknown_rule"
	codeUnavailable    = "unavailable"
	codeInternal       = "internal_error"
)

// errorBody is the JSON body of every non-2xx API response.
type errorBody struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeJSON(w, status, errorBody{
		Error:     code,
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeProblem(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
}

// writeFailure maps a scheduler or rule store error onto a status. Unmapped
// errors are logged under event and answered without their cause.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, event string) {
	switch {
	case errors.Is(err, scheduler.ErrUnknownProgram):
		writeProblem(w, r, http.StatusNotFound, codeUnknownProgram, err.Error())
	case errors.Is(err, dvr.ErrRuleNotFound):
		writeProblem(w, r, http.StatusNotFound, codeUnknownRule, err.Error())
	case errors.Is(err, scheduler.ErrListingsUnavailable):
		writeProblem(w, r, http.StatusServiceUnavailable, codeUnavailable, err.Error())
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, event).Msg("request failed")
		writeProblem(w, r, http.StatusInternalServerError, codeInternal, "")
	}
}
