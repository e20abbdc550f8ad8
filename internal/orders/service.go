package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/harukimori/fleamarket-backend/internal/items"
	"github.com/harukimori/fleamarket-backend/pkg/db/models"
	"github.com/harukimori/fleamarket-backend/pkg/enums"
	pkgerrors "github.com/harukimori/fleamarket-backend/pkg/errors"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
	"github.com/harukimori/fleamarket-backend/pkg/metrics"
	"github.com/harukimori/fleamarket-backend/pkg/pagination"
)

// paymentGateway is the slice of the Stripe client the engine needs.
type paymentGateway interface {
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, description string) (*stripe.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error)
}

// notifier delivers best-effort push messages to users.
type notifier interface {
	Send(ctx context.Context, token, message string) error
}

// txRunner runs a function inside a database transaction.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service coordinates the purchase lifecycle: initiation against the
// gateway, exactly-once completion, shipping, and order reads.
type Service struct {
	repo     Repository
	items    items.Repository
	gateway  paymentGateway
	tx       txRunner
	notify   notifier
	logger   *logger.Logger
	measures *metrics.PurchaseMetrics
}

// NewService wires the purchase engine. The notifier and metrics are
// optional; everything else is required.
func NewService(
	repo Repository,
	itemsRepo items.Repository,
	gateway paymentGateway,
	tx txRunner,
	notify notifier,
	logg *logger.Logger,
	measures *metrics.PurchaseMetrics,
) (*Service, error) {
	if repo == nil {
		return nil, errors.New("orders repository is required")
	}
	if itemsRepo == nil {
		return nil, errors.New("items repository is required")
	}
	if gateway == nil {
		return nil, errors.New("payment gateway is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		repo:     repo,
		items:    itemsRepo,
		gateway:  gateway,
		tx:       tx,
		notify:   notify,
		logger:   logg,
		measures: measures,
	}, nil
}

// InitiatePurchase opens a payment authorization for a listed item and
// records an awaiting_payment order keyed by the gateway intent id. The
// item is not reserved; exclusivity is decided at completion.
func (s *Service) InitiatePurchase(ctx context.Context, buyerID, itemID uuid.UUID) (*PurchaseAuthorization, error) {
	ctx = s.logger.WithUserID(ctx, buyerID.String())

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.measures.IncInitiation("error")
			return nil, pkgerrors.New(pkgerrors.CodeItemUnavailable, "item not found").
				WithDetails(map[string]any{"item_id": itemID.String()})
		}
		s.measures.IncInitiation("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading item")
	}

	if item.SellerID == buyerID {
		s.measures.IncInitiation("error")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot purchase your own item")
	}
	if item.Status != enums.ItemStatusListed {
		s.measures.IncInitiation("error")
		return nil, pkgerrors.New(pkgerrors.CodeItemUnavailable, "item is not listed").
			WithDetails(map[string]any{"item_id": itemID.String(), "status": item.Status.String()})
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, item.Price, item.Currency, "Purchase: "+item.Name)
	if err != nil {
		s.measures.IncInitiation("error")
		return nil, err
	}
	ctx = s.logger.WithPaymentIntentID(ctx, intent.ID)

	order := &models.Order{
		ItemID:          item.ID,
		BuyerID:         buyerID,
		Price:           item.Price,
		Currency:        item.Currency,
		Status:          enums.OrderStatusAwaitingPayment,
		PaymentIntentID: intent.ID,
	}
	created, err := s.repo.Create(ctx, order)
	if err != nil {
		s.measures.IncInitiation("error")
		s.logger.Error(ctx, "recording order after gateway authorization", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording order")
	}

	s.measures.IncInitiation("ok")
	s.logger.Info(s.logger.WithOrderID(ctx, created.ID.String()), "purchase initiated")

	return &PurchaseAuthorization{
		OrderID:         created.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Price:           created.Price,
		Currency:        created.Currency,
	}, nil
}

// CompletePurchase settles the order for a succeeded payment intent. The
// gateway is consulted directly; the caller's claim about the payment is
// never trusted. Replays return the already-completed order unchanged.
func (s *Service) CompletePurchase(ctx context.Context, intentID string) (*models.Order, error) {
	ctx = s.logger.WithPaymentIntentID(ctx, intentID)

	intent, err := s.gateway.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		s.measures.IncCompletion(metrics.CompletionOutcomeFailed)
		return nil, err
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		s.measures.IncCompletion(metrics.CompletionOutcomeFailed)
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotSucceeded,
			fmt.Sprintf("payment intent status is %s", intent.Status)).
			WithDetails(map[string]any{"intent_status": string(intent.Status)})
	}

	existing, err := s.repo.FindByPaymentIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.measures.IncCompletion(metrics.CompletionOutcomeFailed)
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment intent")
		}
		s.measures.IncCompletion(metrics.CompletionOutcomeFailed)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}
	ctx = s.logger.WithOrderID(ctx, existing.ID.String())

	if existing.Status.Completed() {
		s.measures.IncCompletion(metrics.CompletionOutcomeReplayed)
		s.logger.Info(ctx, "completion replayed, order already settled")
		return existing, nil
	}

	replayed := false
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByPaymentIntentIDForUpdate(ctx, intentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment intent")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locking order")
		}

		// Re-check under the lock; a concurrent completion may have won
		// between the fast-path read and here.
		if order.Status.Completed() {
			replayed = true
			return nil
		}

		sold, err := s.items.WithTx(tx).TrySetSold(ctx, order.ItemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking item sold")
		}
		if !sold {
			return pkgerrors.New(pkgerrors.CodeCompletionConflict, "item already sold to a competing order").
				WithDetails(map[string]any{"item_id": order.ItemID.String()})
		}

		if err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPaid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking order paid")
		}
		return nil
	})
	if txErr != nil {
		if pkgerrors.IsCode(txErr, pkgerrors.CodeCompletionConflict) {
			s.measures.IncCompletion(metrics.CompletionOutcomeConflict)
			s.logger.Warn(ctx, "completion lost item to a competing order")
		} else {
			s.measures.IncCompletion(metrics.CompletionOutcomeFailed)
			s.logger.Error(ctx, "completion transaction failed", txErr)
		}
		return nil, txErr
	}

	completed, err := s.repo.FindByPaymentIntentID(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading order")
	}

	if replayed {
		s.measures.IncCompletion(metrics.CompletionOutcomeReplayed)
		s.logger.Info(ctx, "completion replayed, order already settled")
		return completed, nil
	}

	s.measures.IncCompletion(metrics.CompletionOutcomePaid)
	s.logger.Info(ctx, "purchase completed")
	s.notifySeller(ctx, completed)

	return completed, nil
}

// MarkShipped transitions a paid order to shipped. Only the item's seller
// may ship, and only from the paid state.
func (s *Service) MarkShipped(ctx context.Context, actorID, orderID uuid.UUID) (*models.Order, error) {
	ctx = s.logger.WithOrderID(ctx, orderID.String())

	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locking order")
		}

		item, err := s.items.WithTx(tx).FindByID(ctx, order.ItemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading item")
		}
		if item.SellerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can ship this order")
		}

		if !order.Status.CanTransitionTo(enums.OrderStatusShipped) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot ship order in status %s", order.Status)).
				WithDetails(map[string]any{"status": order.Status.String()})
		}

		if err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusShipped); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking order shipped")
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	shipped, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading order")
	}

	s.logger.Info(ctx, "order marked shipped")
	s.notifyBuyer(ctx, shipped)

	return shipped, nil
}

// GetOrder returns a single order visible to its buyer or seller.
func (s *Service) GetOrder(ctx context.Context, actorID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}

	if order.BuyerID != actorID && (order.Item == nil || order.Item.SellerID != actorID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

// ListPurchases pages through a buyer's orders, newest first.
func (s *Service) ListPurchases(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	list, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing purchases")
	}
	return list, nil
}

// ListSales pages through orders on a seller's items, newest first.
func (s *Service) ListSales(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	list, err := s.repo.ListBySeller(ctx, sellerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing sales")
	}
	return list, nil
}

// StaleAwaitingPayment lists awaiting_payment orders older than the cutoff
// for the reconciliation job.
func (s *Service) StaleAwaitingPayment(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return s.repo.FindAwaitingPaymentBefore(ctx, cutoff, limit)
}

func (s *Service) notifySeller(ctx context.Context, order *models.Order) {
	if s.notify == nil || order == nil || order.Item == nil || order.Item.Seller == nil {
		return
	}
	seller := order.Item.Seller
	if seller.NotifyToken == nil || *seller.NotifyToken == "" {
		return
	}

	buyerName := "a buyer"
	if order.Buyer != nil {
		buyerName = order.Buyer.Name
	}
	message := fmt.Sprintf(
		"Your item was sold!\nItem: %s\nBuyer: %s\nPrice: %s %s",
		order.Item.Name, buyerName, order.Price.String(), order.Currency,
	)
	if err := s.notify.Send(ctx, *seller.NotifyToken, message); err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "notify_error", err.Error()), "seller notification failed")
	}
}

func (s *Service) notifyBuyer(ctx context.Context, order *models.Order) {
	if s.notify == nil || order == nil || order.Buyer == nil {
		return
	}
	if order.Buyer.NotifyToken == nil || *order.Buyer.NotifyToken == "" {
		return
	}

	itemName := "your item"
	if order.Item != nil {
		itemName = order.Item.Name
	}
	message := fmt.Sprintf("Your order has shipped!\nItem: %s", itemName)
	if err := s.notify.Send(ctx, *order.Buyer.NotifyToken, message); err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "notify_error", err.Error()), "buyer notification failed")
	}
}
