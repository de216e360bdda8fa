// Package payment decides how a new order gets paid: cash on delivery is
// settled immediately, card payments go through a Stripe Checkout Session.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/nikolayk812/orderflow/internal/port"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// CheckoutSessionCreator is the part of the Stripe API the gateway uses.
// *session.Client from stripe-go satisfies it.
type CheckoutSessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeSessions returns a Stripe checkout session client bound to secretKey.
func NewStripeSessions(secretKey string) CheckoutSessionCreator {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return sc.CheckoutSessions
}

// checkoutTimeout bounds one Stripe call, it runs inside the order transaction.
const checkoutTimeout = 10 * time.Second

type gateway struct {
	sessions CheckoutSessionCreator
	logger   *slog.Logger
}

// NewGateway returns the payment collaborator. A nil sessions disables card payments.
func NewGateway(sessions CheckoutSessionCreator, logger *slog.Logger) port.PaymentGateway {
	if logger == nil {
		logger = slog.Default()
	}

	return &gateway{
		sessions: sessions,
		logger:   logger,
	}
}

func (g *gateway) ValidatePaymentMethod(_ context.Context, req domain.CreateOrderRequest) error {
	switch req.PaymentMethod {
	case domain.PaymentMethodCash:
	case domain.PaymentMethodCard:
		if g.sessions == nil {
			return fmt.Errorf("card payments are not configured: %w", domain.ErrInvalidPaymentMethod)
		}
	default:
		return fmt.Errorf("payment method %q: %w", req.PaymentMethod, domain.ErrInvalidPaymentMethod)
	}

	if req.HasPhysicalItems() && strings.TrimSpace(lo.FromPtr(req.DeliveryAddress)) == "" {
		return domain.ErrMissingDeliveryAddress
	}

	return nil
}

func (g *gateway) InitiatePayment(ctx context.Context, order domain.Order, returnURLBase string) (domain.PaymentResult, error) {
	switch order.PaymentMethod {
	case domain.PaymentMethodCash:
		return domain.PaymentResult{
			IsCashOnDelivery:          true,
			ShouldDeliverClothes:      order.HasPhysicalItems(),
			ShouldMarkPaidImmediately: true,
		}, nil
	case domain.PaymentMethodCard:
		paymentURL, err := g.createCheckoutSession(ctx, order, returnURLBase)
		if err != nil {
			return domain.PaymentResult{}, fmt.Errorf("g.createCheckoutSession: %w", err)
		}

		// physical delivery is enrolled once the payment is confirmed
		return domain.PaymentResult{
			PaymentURL: lo.ToPtr(paymentURL),
		}, nil
	}

	return domain.PaymentResult{}, fmt.Errorf("payment method %q: %w", order.PaymentMethod, domain.ErrInvalidPaymentMethod)
}

func (g *gateway) createCheckoutSession(ctx context.Context, order domain.Order, returnURLBase string) (string, error) {
	if g.sessions == nil {
		return "", fmt.Errorf("card payments are not configured: %w", domain.ErrInvalidPaymentMethod)
	}

	successURL, err := url.JoinPath(returnURLBase, "orders", order.ID.String(), "payment", "success")
	if err != nil {
		return "", fmt.Errorf("url.JoinPath: %w", err)
	}

	cancelURL, err := url.JoinPath(returnURLBase, "orders", order.ID.String(), "payment", "cancel")
	if err != nil {
		return "", fmt.Errorf("url.JoinPath: %w", err)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(order.ID.String()),
		LineItems:         lineItems(order),
	}
	ctx, cancel := context.WithTimeout(ctx, checkoutTimeout)
	defer cancel()
	params.Context = ctx

	params.AddMetadata("order_id", order.ID.String())
	params.AddMetadata("user_id", order.UserID)

	s, err := g.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("sessions.New: %w", err)
	}

	g.logger.Info("checkout session created",
		slog.String("order_id", order.ID.String()),
		slog.String("session_id", s.ID))

	return s.URL, nil
}

var hundred = decimal.NewFromInt(100)

func lineItems(order domain.Order) []*stripe.CheckoutSessionLineItemParams {
	return lo.Map(order.Items, func(item domain.OrderItem, _ int) *stripe.CheckoutSessionLineItemParams {
		return &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(item.PricePerUnit.Currency.String())),
				UnitAmount: stripe.Int64(item.PricePerUnit.Amount.Mul(hundred).Round(0).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("%s %s", item.ProductType, item.ProductID)),
				},
			},
		}
	})
}
