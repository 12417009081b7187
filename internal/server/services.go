package server

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/notify"
	"storefront/internal/outbox"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/shiprocket"
	"storefront/internal/storage"

	"go.uber.org/zap"
)

// Services is the application graph shared by the API server and the operator CLI
type Services struct {
	Categories repository.CategoryRepository
	Products   repository.ProductRepository
	Orders     repository.OrderRepository
	Outbox     repository.OutboxRepository

	Catalog  service.CatalogService
	Checkout service.OrderService
	Payments service.PaymentService
	Shipping service.ShippingService
	Tracking service.TrackingService

	Shiprocket *shiprocket.Client
	Dispatcher *outbox.Dispatcher
	Publisher  events.Publisher
}

// NewServices builds repositories, provider clients, services and the outbox dispatcher
// with every event handler registered. Image storage and event brokers are optional.
func NewServices(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *sql.DB) (*Services, error) {
	s := &Services{
		Categories: repository.NewCategoryRepository(db),
		Products:   repository.NewProductRepository(db),
		Orders:     repository.NewOrderRepository(db),
		Outbox:     repository.NewOutboxRepository(db),
		Shiprocket: shiprocket.NewClient(cfg.Shiprocket, logger.Named("shiprocket")),
	}

	images, err := storage.NewS3Store(ctx, cfg.Storage, logger.Named("storage"))
	switch {
	case errors.Is(err, storage.ErrStorageNotConfigured):
		logger.Warn("Image storage is not configured, uploads are disabled")
		images = nil
	case err != nil:
		return nil, err
	}

	if len(cfg.Kafka.Brokers) > 0 {
		s.Publisher = events.NewKafkaPublisher(cfg.Kafka, logger.Named("events"))
	} else {
		logger.Warn("No Kafka brokers configured, order events are not published")
		s.Publisher = events.NopPublisher{Logger: logger.Named("events")}
	}

	s.Dispatcher = outbox.NewDispatcher(s.Outbox, cfg.Outbox, logger.Named("outbox"))

	gateway := payment.NewClient(cfg.Razorpay, logger.Named("razorpay"))
	s.Catalog = service.NewCatalogService(s.Categories, s.Products, images, logger)
	s.Checkout = service.NewOrderService(s.Products, s.Orders, gateway, cfg.Razorpay.Currency, s.Dispatcher, logger)
	s.Payments = service.NewPaymentService(s.Orders, cfg.Razorpay.KeySecret, cfg.Shiprocket.PickupLocation, s.Dispatcher, logger)
	s.Shipping = service.NewShippingService(s.Orders, s.Shiprocket, cfg.Shiprocket.PickupLocation, cfg.Shiprocket.PickupPostcode, logger)
	s.Tracking = service.NewTrackingService(s.Orders, s.Shiprocket, cfg.Shiprocket.ChannelID, logger)

	mailer := notify.NewSendGridMailer(cfg.SendGrid, logger.Named("mailer"))
	outbox.Register(s.Dispatcher, s.Shipping, s.Orders, mailer, s.Publisher)

	return s, nil
}

// Close releases the provider connections
func (s *Services) Close() error {
	return s.Publisher.Close()
}
