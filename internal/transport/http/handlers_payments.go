package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"atelier/internal/payment"
	"atelier/internal/platform/middleware"
)

type PaymentsHandler struct {
	payments *payment.Service
}

func NewPaymentsHandler(payments *payment.Service) *PaymentsHandler {
	return &PaymentsHandler{payments: payments}
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/api/payments", h.handleCreate)
}

func (h *PaymentsHandler) RegisterWebhooks(r chi.Router) {
	r.Post("/webhooks/payments", h.handleWebhook)
}

type createPaymentBody struct {
	Amount int64  `json:"amount"`
	Type   string `json:"type"`
}

func (h *PaymentsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createPaymentBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.payments.CreateTransaction(r.Context(), middleware.GetAccountID(r.Context()), body.Amount, body.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"orderId":  tx.OrderID,
		"amount":   tx.Amount,
		"status":   tx.Status,
		"provider": tx.Provider,
	})
}

func (h *PaymentsHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var notice payment.Notice
	if err := decode(r, &notice); err != nil {
		writeError(w, err)
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), notice); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
