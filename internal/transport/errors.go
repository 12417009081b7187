package transport

import (
	"errors"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// respondError maps a service error to its status code. Unexpected errors are logged
// and answered with fallback.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, fallback string) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback,
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = fallback
	} else if status == http.StatusBadGateway {
		logger.Warn("Provider request failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	middleware.RespondWithError(w, status, message)
}

func statusFor(err error) (int, string) {
	var provider *service.ProviderError

	switch {
	case service.IsValidationError(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrPaymentOrderMismatch),
		errors.Is(err, service.ErrInvalidShippingAddress):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, repository.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, repository.ErrProductNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, repository.ErrCategoryNotFound):
		return http.StatusNotFound, "Category not found"
	case errors.Is(err, service.ErrNoTrackingData):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrShipmentExists),
		errors.Is(err, service.ErrShipmentInProgress),
		errors.Is(err, service.ErrNoShipmentInProgress),
		errors.Is(err, repository.ErrCategoryAlreadyExists),
		errors.Is(err, repository.ErrDuplicateSKU),
		errors.Is(err, repository.ErrDuplicateSlug):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrImageStorageUnavailable):
		return http.StatusServiceUnavailable, "Image storage is not configured"
	case errors.As(err, &provider):
		return http.StatusBadGateway, provider.Error()
	default:
		return http.StatusInternalServerError, ""
	}
}
