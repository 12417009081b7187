package transport

import (
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// OrderHandler serves checkout and order tracking
type OrderHandler struct {
	orders   service.OrderService
	tracking service.TrackingService
	logger   *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders service.OrderService, tracking service.TrackingService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		tracking: tracking,
		logger:   logger,
	}
}

// RegisterRoutes registers the order routes. identify resolves an optional caller
// identity; limit guards order creation.
func (h *OrderHandler) RegisterRoutes(r chi.Router, identify, limit func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.With(identify, limit).Post("/create", h.CreateOrder)
		r.Get("/track", h.TrackOrder)
	})
}

// CreateOrder turns a submitted cart into a pending order
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateOrderInput
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Order validation failed", zap.Error(err))
		middleware.RespondWithRequestError(w, err)
		return
	}

	if userID, ok := middleware.GetUserID(r.Context()); ok {
		req.UserID = &userID
	}

	result, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to create order")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, result)
}

// TrackOrder looks an order up by number, or a shipment up by provider shipment ID
func (h *OrderHandler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	orderNumber := query.Get("orderNumber")
	rawShipmentID := query.Get("shipmentId")

	if rawShipmentID != "" {
		shipmentID, err := strconv.ParseInt(rawShipmentID, 10, 64)
		if err != nil || shipmentID <= 0 {
			middleware.RespondWithError(w, http.StatusBadRequest, "Invalid shipment ID")
			return
		}

		tracking, err := h.tracking.TrackShipment(r.Context(), shipmentID)
		if err != nil {
			var provider *service.ProviderError
			if errors.As(err, &provider) {
				h.logger.Error("Shipment tracking failed", zap.Int64("shipment_id", shipmentID), zap.Error(err))
				middleware.RespondWithError(w, http.StatusInternalServerError, provider.Error())
				return
			}
			respondError(w, r, h.logger, err, "Failed to track shipment")
			return
		}

		middleware.RespondWithSuccess(w, http.StatusOK, tracking)
		return
	}

	if orderNumber == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "Order number or shipment ID is required")
		return
	}

	tracking, err := h.tracking.TrackOrder(r.Context(), orderNumber)
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to track order")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, tracking)
}
