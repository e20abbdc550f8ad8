package cron

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/harukimori/fleamarket-backend/pkg/db/models"
	pkgerrors "github.com/harukimori/fleamarket-backend/pkg/errors"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
)

// staleOrderSource lists awaiting_payment orders older than a cutoff.
type staleOrderSource interface {
	StaleAwaitingPayment(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// completer replays completion for a payment intent.
type completer interface {
	CompletePurchase(ctx context.Context, intentID string) (*models.Order, error)
}

// PaymentReconcileJobParams configure the reconciliation job.
type PaymentReconcileJobParams struct {
	Orders    staleOrderSource
	Engine    completer
	Logger    *logger.Logger
	MinAge    time.Duration
	BatchSize int
}

// PaymentReconcileJob sweeps stale awaiting_payment orders and replays
// completion against the gateway's view. Webhook deliveries occasionally go
// missing; this job is the safety net that converges local state.
type PaymentReconcileJob struct {
	orders    staleOrderSource
	engine    completer
	logg      *logger.Logger
	minAge    time.Duration
	batchSize int
}

// NewPaymentReconcileJob builds the reconciliation job.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (*PaymentReconcileJob, error) {
	if params.Orders == nil {
		return nil, errors.New("order source is required")
	}
	if params.Engine == nil {
		return nil, errors.New("purchase engine is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = 30 * time.Minute
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &PaymentReconcileJob{
		orders:    params.Orders,
		engine:    params.Engine,
		logg:      params.Logger,
		minAge:    minAge,
		batchSize: batchSize,
	}, nil
}

// Name implements Job.
func (j *PaymentReconcileJob) Name() string {
	return "payment_reconcile"
}

// Run implements Job. Orders whose payments have not succeeded yet are
// expected and skipped; only infrastructure failures fail the run.
func (j *PaymentReconcileJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.minAge)
	stale, err := j.orders.StaleAwaitingPayment(ctx, cutoff, j.batchSize)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	j.logg.Info(j.logg.WithField(ctx, "count", len(stale)), "reconciling stale orders")

	var errs error
	settled := 0
	for _, order := range stale {
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
		orderCtx = j.logg.WithPaymentIntentID(orderCtx, order.PaymentIntentID)

		_, err := j.engine.CompletePurchase(orderCtx, order.PaymentIntentID)
		switch {
		case err == nil:
			settled++
		case pkgerrors.IsCode(err, pkgerrors.CodePaymentNotSucceeded):
			// Still unpaid at the gateway; leave it for the next sweep.
		case pkgerrors.IsCode(err, pkgerrors.CodeCompletionConflict):
			j.logg.Warn(orderCtx, "stale order lost its item to a competing order")
		default:
			errs = multierr.Append(errs, err)
		}
	}

	j.logg.Info(j.logg.WithField(ctx, "settled", settled), "reconciliation sweep finished")
	return errs
}
