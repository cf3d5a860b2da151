package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"virtual-trading-sim/internal/models"
	"virtual-trading-sim/internal/trading"

	"go.uber.org/zap"
)

// response is the envelope of every JSON reply.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, status int, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response{Success: success, Message: message, Data: data}); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	s.respond(w, http.StatusOK, true, "", data)
}

func (s *Server) fail(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, false, message, nil)
}

// failErr maps an error to its status. Unclassified errors are logged and
// answered with an opaque message.
func (s *Server) failErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidOrder):
		s.fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		s.fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrAlreadyExists):
		s.fail(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("Request failed", zap.Error(err))
		s.fail(w, http.StatusInternalServerError, "internal error, please retry")
	}
}

func statusOf(outcome trading.Outcome) int {
	switch outcome {
	case trading.OutcomeOK:
		return http.StatusOK
	case trading.OutcomeValidationFault:
		return http.StatusBadRequest
	case trading.OutcomeBusinessRejection:
		return http.StatusUnprocessableEntity
	case trading.OutcomeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
