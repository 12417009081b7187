package transport

import (
	"net/http"
	"strconv"

	"storefront/internal/middleware"
	"storefront/internal/service"
	"storefront/internal/shiprocket"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ShippingHandler serves shipment creation and courier rate checks
type ShippingHandler struct {
	shipping service.ShippingService
	logger   *zap.Logger
}

// NewShippingHandler creates a new ShippingHandler
func NewShippingHandler(shipping service.ShippingService, logger *zap.Logger) *ShippingHandler {
	return &ShippingHandler{shipping: shipping, logger: logger}
}

// RegisterRoutes registers the shipping routes. Shipment creation sits behind admin.
func (h *ShippingHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/api/shiprocket", func(r chi.Router) {
		r.Get("/check-rates", h.CheckRates)
		r.With(admin).Post("/orders/create", h.CreateShipment)
	})
}

// CreateShipment registers a paid order with the logistics provider
func (h *ShippingHandler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req service.CreateShipmentInput
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithRequestError(w, err)
		return
	}

	result, err := h.shipping.CreateShipment(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to create Shiprocket order")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, result)
}

// CheckRates quotes the couriers serving a route
func (h *ShippingHandler) CheckRates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := shiprocket.ServiceabilityParams{
		PickupPostcode:   query.Get("pickup_postcode"),
		DeliveryPostcode: query.Get("delivery_postcode"),
		COD:              query.Get("cod") == "true" || query.Get("cod") == "1",
		Weight:           query.Get("weight"),
		Mode:             query.Get("mode"),
	}

	for name, dst := range map[string]*int{
		"length":  &params.Length,
		"breadth": &params.Breadth,
		"height":  &params.Height,
	} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "Invalid "+name)
			return
		}
		*dst = value
	}

	if raw := query.Get("declared_value"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "Invalid declared_value")
			return
		}
		params.DeclaredValue = value
	}

	rates, err := h.shipping.CheckRates(r.Context(), params)
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to fetch shipping rates")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, rates)
}
