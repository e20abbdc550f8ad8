package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/harukimori/fleamarket-backend/api/responses"
	pkgerrors "github.com/harukimori/fleamarket-backend/pkg/errors"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
)

type stripeWebhookService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) error
}

// StripeWebhook receives gateway event deliveries and acks or fails them.
func StripeWebhook(svc stripeWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		if err := svc.HandleEvent(ctx, payload, sigHeader); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
