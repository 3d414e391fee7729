package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/logger"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/services"
)

const (
	requestTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// envelope is the JSON response body shape shared by every endpoint.
type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	if _, ok := body["success"]; !ok {
		body["success"] = status < http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFail(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{"success": false, "code": code, "message": message})
}

// errorStatus maps service error kinds to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// publicMessage is the text safe to show a client for err.
func publicMessage(err error) string {
	status, _ := errorStatus(err)
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusUnauthorized:
		return "Authentication required"
	case http.StatusForbidden:
		return "You do not have access to this resource"
	case http.StatusNotFound:
		return "Not found"
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable, please retry"
	default:
		return "Internal server error"
	}
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log := logger.Ctx(ctx)
		log.Error().Err(err).Int(logger.FieldStatus, status).Msg("request failed")
	}
	writeFail(w, status, code, publicMessage(err))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return false
	}
	return true
}
