package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PaymentHandler relays gateway callbacks from the checkout page
type PaymentHandler struct {
	payments service.PaymentService
	logger   *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// RegisterRoutes registers the payment routes
func (h *PaymentHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.With(limit).Post("/api/payments/verify", h.VerifyPayment)
}

// VerifyPayment confirms an order after a successful online payment
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyPaymentInput
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithRequestError(w, err)
		return
	}

	result, err := h.payments.VerifyPayment(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err, "Payment verification failed")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, result)
}
