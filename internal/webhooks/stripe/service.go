package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/harukimori/fleamarket-backend/pkg/db/models"
	pkgerrors "github.com/harukimori/fleamarket-backend/pkg/errors"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
)

// purchaseCompleter is the slice of the purchase engine the webhook needs.
type purchaseCompleter interface {
	CompletePurchase(ctx context.Context, intentID string) (*models.Order, error)
}

// Service verifies, deduplicates, and dispatches Stripe webhook events.
type Service struct {
	signingSecret string
	engine        purchaseCompleter
	guard         *IdempotencyGuard
	logger        *logger.Logger
}

// NewService wires the webhook handler.
func NewService(signingSecret string, engine purchaseCompleter, guard *IdempotencyGuard, logg *logger.Logger) (*Service, error) {
	if signingSecret == "" {
		return nil, errors.New("webhook signing secret is required")
	}
	if engine == nil {
		return nil, errors.New("purchase engine is required")
	}
	if guard == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		signingSecret: signingSecret,
		engine:        engine,
		guard:         guard,
		logger:        logg,
	}, nil
}

// HandleEvent verifies the signature, claims the event id, and dispatches.
// A returned error means the delivery should be retried by Stripe.
func (s *Service) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.signingSecret)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "webhook signature verification failed")
	}

	ctx = s.logger.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	fresh, err := s.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claiming webhook event")
	}
	if !fresh {
		s.logger.Info(ctx, "duplicate webhook delivery skipped")
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		if isRetryable(err) {
			// Drop the claim so Stripe's redelivery gets another attempt.
			if relErr := s.guard.Release(ctx, event.ID); relErr != nil {
				s.logger.Error(ctx, "releasing webhook idempotency mark", relErr)
			}
			return err
		}
		// Terminal failures are acked; retrying cannot change the outcome.
		s.logger.Warn(s.logger.WithField(ctx, "handler_error", err.Error()), "webhook event failed terminally")
		return nil
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		return s.handlePaymentIntentSucceeded(ctx, event)
	default:
		s.logger.Info(ctx, "ignoring unhandled webhook event type")
		return nil
	}
}

func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding payment intent payload")
	}
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing from event")
	}

	if _, err := s.engine.CompletePurchase(ctx, intent.ID); err != nil {
		return fmt.Errorf("completing purchase from webhook: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	// A completion conflict means the item went to a competing order; no
	// number of redeliveries changes that.
	if typed.Code() == pkgerrors.CodeCompletionConflict {
		return false
	}
	return pkgerrors.MetadataFor(typed.Code()).Retryable
}
