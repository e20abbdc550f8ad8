package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/harukimori/fleamarket-backend/pkg/config"
	pkgerrors "github.com/harukimori/fleamarket-backend/pkg/errors"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Currencies whose minor unit equals the major unit; Stripe takes their
// amounts without the x100 scaling.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"vnd": true, "vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// Client wraps Stripe's API client plus env-specific metadata. It is the only
// path to the payment gateway; the purchase engine consumes it through a
// narrow interface.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	logger        *logger.Logger
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
		logger:        logg,
	}, nil
}

// CreatePaymentIntent opens a new authorization at the gateway for the given
// amount. Nothing is persisted locally before this call returns.
func (c *Client) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, description string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:      stripe.Int64(minorUnits(amount, currency)),
		Currency:    stripe.String(strings.ToLower(currency)),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}

	intent, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, c.mapStripeError(ctx, err, "create payment intent")
	}
	return intent, nil
}

// RetrievePaymentIntent fetches the gateway's current view of an authorization.
// Completion always goes through this call instead of trusting client claims.
func (c *Client) RetrievePaymentIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}

	intent, err := c.api.V1PaymentIntents.Retrieve(ctx, intentID, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return nil, c.mapStripeError(ctx, err, "retrieve payment intent")
	}
	return intent, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func (c *Client) mapStripeError(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	if c.logger != nil {
		ctx = c.logger.WithField(ctx, "operation", op)
		c.logger.Error(ctx, "stripe call failed", err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		wrapped := pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("stripe %s failed", op))
		return wrapped.WithDetails(map[string]any{
			"stripe_code": string(stripeErr.Code),
			"stripe_type": string(stripeErr.Type),
		})
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("stripe %s failed", op))
}

func minorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
