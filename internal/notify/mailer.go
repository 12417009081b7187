package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"storefront/internal/config"
	"storefront/internal/domain"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

var ErrMailerNotConfigured = errors.New("SENDGRID_API_KEY is not set")

// Mailer sends transactional customer email
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order *domain.Order) error
}

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type sendGridMailer struct {
	client    sender
	fromName  string
	fromEmail string
	logger    *zap.Logger
}

// NewSendGridMailer creates a Mailer backed by SendGrid. Without an API key every send
// fails with ErrMailerNotConfigured.
func NewSendGridMailer(cfg config.SendGridConfig, logger *zap.Logger) Mailer {
	var client sender
	if cfg.APIKey != "" {
		client = sendgrid.NewSendClient(cfg.APIKey)
	}
	return &sendGridMailer{
		client:    client,
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
		logger:    logger,
	}
}

// SendOrderConfirmation mails the order summary to the customer. Orders without a
// customer email are skipped.
func (m *sendGridMailer) SendOrderConfirmation(ctx context.Context, order *domain.Order) error {
	toEmail := order.CustomerEmail()
	if toEmail == "" {
		m.logger.Warn("Skipping order confirmation without customer email", zap.String("order_number", order.OrderNumber))
		return nil
	}
	if m.client == nil {
		return ErrMailerNotConfigured
	}

	subject := "Order Confirmation - " + order.OrderNumber
	text, htmlBody := renderOrderConfirmation(order)

	message := mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.fromEmail),
		subject,
		mail.NewEmail(order.CustomerName(), toEmail),
		text,
		htmlBody,
	)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send order confirmation: %w", err)
	}
	if response.StatusCode >= 400 {
		m.logger.Error("SendGrid API error",
			zap.Int("status", response.StatusCode),
			zap.String("body", response.Body),
		)
		return fmt.Errorf("failed to send email, status code: %d", response.StatusCode)
	}

	m.logger.Info("Order confirmation sent",
		zap.String("order_number", order.OrderNumber),
		zap.Int("status", response.StatusCode),
	)
	return nil
}

func renderOrderConfirmation(order *domain.Order) (string, string) {
	var text, body strings.Builder

	fmt.Fprintf(&text, "Hi %s,\n\nThank you for your order %s.\n\n", order.CustomerName(), order.OrderNumber)
	fmt.Fprintf(&body, "<p>Hi %s,</p><p>Thank you for your order <strong>%s</strong>.</p><table>",
		html.EscapeString(order.CustomerName()), html.EscapeString(order.OrderNumber))

	for _, item := range order.Items {
		fmt.Fprintf(&text, "%d x %s  ₹%s\n", item.Quantity, item.Name, item.Total.StringFixed(2))
		fmt.Fprintf(&body, "<tr><td>%d x %s</td><td>₹%s</td></tr>",
			item.Quantity, html.EscapeString(item.Name), item.Total.StringFixed(2))
	}

	fmt.Fprintf(&text, "\nSubtotal: ₹%s\nShipping: ₹%s\nTotal: ₹%s\n",
		order.Subtotal.StringFixed(2), order.Shipping.StringFixed(2), order.Total.StringFixed(2))
	fmt.Fprintf(&body, "</table><p>Subtotal: ₹%s<br>Shipping: ₹%s<br><strong>Total: ₹%s</strong></p>",
		order.Subtotal.StringFixed(2), order.Shipping.StringFixed(2), order.Total.StringFixed(2))

	return text.String(), body.String()
}
