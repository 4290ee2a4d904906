package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"go.uber.org/zap"
)

var ErrInvalidAmount = errors.New("payment amount must be positive")

// Gateway starts card payments for orders.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, amount float64, currency string, metadata map[string]string) (string, error)
	CancelPaymentIntent(ctx context.Context, paymentIntentID string) error
}

// intentClient is the part of paymentintent.Client the gateway calls.
type intentClient interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

var _ Gateway = (*StripeGateway)(nil)

type StripeGateway struct {
	intents intentClient
	logger  *zap.Logger
}

func NewStripeGateway(secretKey string, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		intents: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		logger:  logger,
	}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amount float64, currency string, metadata map[string]string) (string, error) {
	minor, err := ToMinorUnits(amount, currency)
	if err != nil {
		return "", err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	intent, err := g.intents.New(params)
	if err != nil {
		g.logger.Error("Failed to create payment intent", zap.Int64("amount", minor), zap.String("currency", currency), zap.Error(err))
		return "", fmt.Errorf("failed to create payment intent: %w", err)
	}

	g.logger.Info("Payment intent created", zap.String("payment_intent_id", intent.ID), zap.Int64("amount", minor))
	return intent.ID, nil
}

// CancelPaymentIntent abandons an intent whose order was never stored.
func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	if _, err := g.intents.Cancel(paymentIntentID, params); err != nil {
		g.logger.Error("Failed to cancel payment intent", zap.String("payment_intent_id", paymentIntentID), zap.Error(err))
		return fmt.Errorf("failed to cancel payment intent: %w", err)
	}

	g.logger.Info("Payment intent cancelled", zap.String("payment_intent_id", paymentIntentID))
	return nil
}

// zeroDecimalCurrencies are charged in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true,
	"mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true,
	"xof": true, "xpf": true,
}

// ToMinorUnits converts amount to the smallest unit of currency, rounding half
// away from zero.
func ToMinorUnits(amount float64, currency string) (int64, error) {
	value := decimal.NewFromFloat(amount)
	if !value.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if !zeroDecimalCurrencies[strings.ToLower(currency)] {
		value = value.Shift(2)
	}
	return value.Round(0).IntPart(), nil
}
