package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tutorhub/server/internal/auth"
	"github.com/tutorhub/server/internal/logutil"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 20 << 10

// envelope is the body of every JSON response.
type envelope struct {
	Status  int    `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// respond sends a success envelope
func respond(w http.ResponseWriter, r *http.Request, statusCode int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(envelope{
		Status:  statusCode,
		Data:    data,
		Message: message,
		Success: true,
	}); err != nil {
		logger := logutil.GetOrDefault(r.Context())
		logger.Warn().Err(err).Msg("failed to encode response")
	}
}

// respondWithError sends an error envelope
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope{
		Status:  statusCode,
		Message: message,
		Success: false,
	})
}

// respondWithErr maps a service error to its status code. Unclassified errors are logged and hidden.
func respondWithErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotFound):
		status = http.StatusNotFound
	}

	var authErr *auth.Error
	if status == http.StatusInternalServerError || !errors.As(err, &authErr) {
		logger := logutil.GetOrDefault(r.Context())
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondWithError(w, status, authErr.Message)
}

// readBody reads a JSON request body up to maxJSONBody bytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxJSONBody)
		}
		return nil, fmt.Errorf("invalid request body")
	}
	return body, nil
}

// decodeBody reads and decodes a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return decodeJSON(body, dst)
}

func decodeJSON(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid request body")
	}
	return nil
}
