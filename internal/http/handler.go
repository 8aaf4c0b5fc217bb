package http

import (
	"encoding/json"
	"net/http"
	"time"

	"SolPayGate/internal/services"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Payments *services.PaymentService
}

func NewHandler(payments *services.PaymentService) *Handler {
	return &Handler{Payments: payments}
}

type verifyResponse struct {
	Status    string `json:"status"`
	Nonce     string `json:"nonce"`
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
	ExpiresAt string `json:"expiresAt"`
}

type settleRequest struct {
	PaymentRequest services.PaymentRequest `json:"paymentRequest"`
}

type settleResponse struct {
	Status               string `json:"status"`
	TransactionSignature string `json:"transactionSignature"`
}

type dataResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req services.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rec, err := h.Payments.Verify(r.Context(), &req)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Status:    "verified",
		Nonce:     rec.Nonce,
		Amount:    rec.Amount,
		Recipient: rec.Recipient,
		ExpiresAt: rec.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	sig, err := h.Payments.Settle(r.Context(), &req.PaymentRequest)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settleResponse{
		Status:               "settled",
		TransactionSignature: sig,
	})
}

func (h *Handler) StoreNonce(w http.ResponseWriter, r *http.Request) {
	var req services.IssueParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rec, err := h.Payments.IssueNonce(r.Context(), req)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Status: "ok", Data: rec})
}

func (h *Handler) GetNonce(w http.ResponseWriter, r *http.Request) {
	nonce := chi.URLParam(r, "nonce")
	if nonce == "" {
		writeError(w, http.StatusBadRequest, "missing nonce")
		return
	}

	rec, err := h.Payments.GetNonce(r.Context(), nonce)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Status: "ok", Data: rec})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Payments.Stats(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Status: "ok", Data: stats})
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	cleaned, err := h.Payments.Cleanup(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Status: "ok", Data: map[string]int64{"cleaned": cleaned}})
}
