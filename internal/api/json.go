package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/raido/internal/forms"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeFormErrors renders field-keyed validation messages. The form is
// expected to be redisplayed by the UI, so this is a 422, not a 400.
func writeFormErrors(w http.ResponseWriter, errs forms.Errors) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"errors": errs,
	})
}
