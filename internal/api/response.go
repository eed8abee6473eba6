package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
)

// ErrorCode — машинный код ошибки в теле ответа.
type ErrorCode string

const (
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeEtagMismatch ErrorCode = "ETAG_MISMATCH"
	ErrCodeInvalidPlan  ErrorCode = "INVALID_PLAN"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — код и текст ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — тело успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — тело ответа со списком ids или tasks.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total,omitempty"`
}

// knownErrors переводит ошибки store и domain в статус ответа.
var knownErrors = []struct {
	err    error
	status int
	code   ErrorCode
}{
	{store.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{store.ErrConflict, http.StatusConflict, ErrCodeEtagMismatch},
	{domain.ErrInvalidPlan, http.StatusUnprocessableEntity, ErrCodeInvalidPlan},
}

// JSON пишет data со статусом status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success — 200 с документом.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Accepted — 202: task поставлена в очередь, результата ещё нет.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, DataResponse{Data: data})
}

// List — 200 со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error пишет ErrorResponse.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// BadRequest — 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound — 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalError логирует err и отвечает 500 без подробностей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// HandleStoreError отвечает ошибкой, если err != nil, и возвращает true.
// notFoundMsg заменяет текст для store.ErrNotFound, если не пуст.
func HandleStoreError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	for _, known := range knownErrors {
		if !errors.Is(err, known.err) {
			continue
		}
		message := err.Error()
		if known.code == ErrCodeNotFound && notFoundMsg != "" {
			message = notFoundMsg
		}
		Error(w, known.status, known.code, message)
		return true
	}

	InternalError(w, logger, err)
	return true
}
