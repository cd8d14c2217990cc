package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/inventory"
	"github.com/kiwari-pos/engine/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// envelope is the success half of the tagged result.
type envelope struct {
	Data     any                 `json:"data"`
	Warnings []inventory.Warning `json:"warnings,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeData(w http.ResponseWriter, status int, data any, warnings []inventory.Warning) {
	writeJSON(w, status, envelope{Data: data, Warnings: warnings})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
		Kind:    kindName(service.ErrValidationFailed),
		Code:    service.CodeValidationFailed,
		Message: msg,
	}})
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: errorBody{
		Kind:    "Unauthorized",
		Code:    "UNAUTHORIZED",
		Message: msg,
	}})
}

func internalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: errorBody{
		Kind:    kindName(service.ErrTransactionFailed),
		Code:    service.CodeTransactionFailed,
		Message: "internal server error",
	}})
}

// writeServiceError maps a service error onto its HTTP status and tagged body.
// Transaction failures are logged and their detail is not returned.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	kind := service.KindOf(err)
	msg := err.Error()
	if errors.Is(kind, service.ErrTransactionFailed) {
		logger.Error(op+" failed", zap.Error(err))
		msg = "transaction failed, nothing was changed"
	}
	writeJSON(w, statusFor(kind), errorEnvelope{Error: errorBody{
		Kind:    kindName(kind),
		Code:    service.CodeOf(err),
		Message: msg,
	}})
}

func statusFor(kind error) int {
	switch kind {
	case service.ErrValidationFailed:
		return http.StatusBadRequest
	case service.ErrNotFound:
		return http.StatusNotFound
	case service.ErrConflict:
		return http.StatusConflict
	case service.ErrInvalidTransition:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func kindName(kind error) string {
	switch kind {
	case service.ErrValidationFailed:
		return "ValidationFailed"
	case service.ErrNotFound:
		return "NotFound"
	case service.ErrConflict:
		return "Conflict"
	case service.ErrInvalidTransition:
		return "InvalidTransition"
	case service.ErrInsufficientStock:
		return "InsufficientStock"
	}
	return "TransactionFailed"
}

func urlUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

// optionalUUID parses s, treating "" as uuid.Nil.
func optionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func money(n pgtype.Numeric) string {
	return database.ToDecimal(n).StringFixed(2)
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}
