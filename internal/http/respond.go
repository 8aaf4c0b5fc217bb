package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"SolPayGate/internal/payments"
)

// Every response, success or error, uses one envelope keyed by "status".
// The payment endpoints answer domain errors with HTTP 200 and an embedded
// status so clients parse a single shape; only infrastructure faults
// surface as 500.

type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, httpStatus int, msg string) {
	writeJSON(w, httpStatus, errorBody{Status: "error", Error: msg})
}

// writePaymentError maps a lifecycle error onto the wire: storage faults are
// 500, everything else is a domain outcome delivered with HTTP 200.
func writePaymentError(w http.ResponseWriter, err error) {
	var storage *payments.StorageError
	if errors.As(err, &storage) {
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeError(w, http.StatusOK, err.Error())
}

// writeAdminError is the same mapping for the administrative endpoints,
// which keep conventional status codes.
func writeAdminError(w http.ResponseWriter, err error) {
	var storage *payments.StorageError
	switch {
	case errors.As(err, &storage):
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	case errors.Is(err, payments.ErrNonceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, payments.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
