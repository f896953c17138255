package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/njagatron/PEPE-DOT/internal/pdfinfo"
	"github.com/njagatron/PEPE-DOT/internal/storage"
	"github.com/njagatron/PEPE-DOT/internal/workorder"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// domainError maps the error taxonomy onto HTTP statuses and error types.
func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		httpError(w, http.StatusConflict, "duplicate_name", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, workorder.ErrIndexOutOfRange):
		httpError(w, http.StatusBadRequest, "index_out_of_range", "%v", err)
	case errors.Is(err, workorder.ErrMissingInput):
		httpError(w, http.StatusBadRequest, "missing_input", "%v", err)
	case errors.Is(err, pdfinfo.ErrDecode):
		httpError(w, http.StatusUnprocessableEntity, "decode_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
