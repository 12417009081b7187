package outbox

import (
	"context"
	"errors"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/notify"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/cenkalti/backoff/v4"
)

// ShipmentHandler creates the shipment for a paid order. An order that already has a
// shipment counts as delivered. An order stuck in CREATING is retried until the event is
// parked, where an operator records or releases the shipment.
func ShipmentHandler(shipping service.ShippingService) Handler {
	return func(ctx context.Context, event *domain.OutboxEvent) error {
		payload, err := event.DecodePayload()
		if err != nil {
			return backoff.Permanent(err)
		}

		_, err = shipping.CreateShipment(ctx, service.CreateShipmentInput{
			OrderID:        payload.OrderID,
			PickupLocation: payload.PickupLocation,
		})
		switch {
		case err == nil, errors.Is(err, service.ErrShipmentExists):
			return nil
		case errors.Is(err, repository.ErrOrderNotFound),
			errors.Is(err, service.ErrInvalidShippingAddress),
			service.IsValidationError(err):
			return backoff.Permanent(err)
		}
		return err
	}
}

// EmailHandler sends the order confirmation email
func EmailHandler(orders repository.OrderRepository, mailer notify.Mailer) Handler {
	return func(ctx context.Context, event *domain.OutboxEvent) error {
		order, err := orders.FindByID(ctx, event.AggregateID)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}

		err = mailer.SendOrderConfirmation(ctx, order)
		if errors.Is(err, notify.ErrMailerNotConfigured) {
			return backoff.Permanent(err)
		}
		return err
	}
}

// PublishHandler forwards lifecycle events to the event stream keyed by order id
func PublishHandler(publisher events.Publisher) Handler {
	return func(ctx context.Context, event *domain.OutboxEvent) error {
		return publisher.Publish(ctx, event.AggregateID.String(), event)
	}
}

// Register wires the handlers of every event type the services emit
func Register(d *Dispatcher, shipping service.ShippingService, orders repository.OrderRepository, mailer notify.Mailer, publisher events.Publisher) {
	d.Handle(domain.EventShipmentRequested, ShipmentHandler(shipping))
	d.Handle(domain.EventOrderConfirmationEmail, EmailHandler(orders, mailer))

	publish := PublishHandler(publisher)
	d.Handle(domain.EventOrderCreated, publish)
	d.Handle(domain.EventOrderConfirmed, publish)
	d.Handle(domain.EventShipmentCreated, publish)
}
