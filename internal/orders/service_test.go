package orders

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

type stubOrdersRepo struct {
	byIntent map[string]*models.Order
	byID     map[uuid.UUID]*models.Order
	created  []*models.Order

	createErr error
}

func newStubOrdersRepo(orders ...*models.Order) *stubOrdersRepo {
	repo := &stubOrdersRepo{
		byIntent: map[string]*models.Order{},
		byID:     map[uuid.UUID]*models.Order{},
	}
	for _, order := range orders {
		repo.byIntent[order.PaymentIntentID] = order
		repo.byID[order.ID] = order
	}
	return repo
}

func (r *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	r.created = append(r.created, order)
	r.byIntent[order.PaymentIntentID] = order
	r.byID[order.ID] = order
	return order, nil
}

func (r *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := r.byID[id]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrdersRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *stubOrdersRepo) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	if order, ok := r.byIntent[intentID]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrdersRepo) FindByPaymentIntentIDForUpdate(ctx context.Context, intentID string) (*models.Order, error) {
	return r.FindByPaymentIntentID(ctx, intentID)
}

func (r *stubOrdersRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	order, ok := r.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	order.Status = status
	return nil
}

func (r *stubOrdersRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	return &OrderList{}, nil
}

func (r *stubOrdersRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	return &OrderList{}, nil
}

func (r *stubOrdersRepo) FindAwaitingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

type stubItemsRepo struct {
	item *models.Item

	soldResult bool
	soldErr    error
	soldCalls  int
}

func (r *stubItemsRepo) WithTx(tx *gorm.DB) items.Repository { return r }

func (r *stubItemsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	if r.item == nil || r.item.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return r.item, nil
}

func (r *stubItemsRepo) TrySetSold(ctx context.Context, id uuid.UUID) (bool, error) {
	r.soldCalls++
	if r.soldErr != nil {
		return false, r.soldErr
	}
	if r.soldResult && r.item != nil {
		r.item.Status = enums.ItemStatusSold
	}
	return r.soldResult, nil
}

type stubGateway struct {
	createResult   *stripe.PaymentIntent
	createErr      error
	createCalls    int
	retrieveResult *stripe.PaymentIntent
	retrieveErr    error
}

func (g *stubGateway) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, description string) (*stripe.PaymentIntent, error) {
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.createResult, nil
}

func (g *stubGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	return g.retrieveResult, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubNotifier struct {
	tokens   []string
	messages []string
	err      error
}

func (n *stubNotifier) Send(ctx context.Context, token, message string) error {
	n.tokens = append(n.tokens, token)
	n.messages = append(n.messages, message)
	return n.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func ptrString(v string) *string { return &v }

func newTestFixtures() (*models.Item, *models.Order) {
	seller := &models.User{ID: uuid.New(), Name: "Seller", NotifyToken: ptrString("token-seller")}
	item := &models.Item{
		ID:       uuid.New(),
		SellerID: seller.ID,
		Name:     "Vintage camera",
		Price:    decimal.NewFromInt(4500),
		Currency: "jpy",
		Status:   enums.ItemStatusListed,
		Seller:   seller,
	}
	buyer := &models.User{ID: uuid.New(), Name: "Buyer", NotifyToken: ptrString("token-buyer")}
	order := &models.Order{
		ID:              uuid.New(),
		ItemID:          item.ID,
		BuyerID:         buyer.ID,
		Price:           item.Price,
		Currency:        item.Currency,
		Status:          enums.OrderStatusAwaitingPayment,
		PaymentIntentID: "pi_test_123",
		Item:            item,
		Buyer:           buyer,
		CreatedAt:       time.Now().UTC(),
	}
	return item, order
}

func newTestService(t *testing.T, ordersRepo *stubOrdersRepo, itemsRepo *stubItemsRepo, gateway *stubGateway, notifier *stubNotifier) *Service {
	t.Helper()
	svc, err := NewService(ordersRepo, itemsRepo, gateway, stubTxRunner{}, notifier, testLogger(), metrics.NewPurchaseMetrics(nil))
	require.NoError(t, err)
	return svc
}

func TestInitiatePurchase_createsOrderForListedItem(t *testing.T) {
	item, _ := newTestFixtures()
	buyerID := uuid.New()
	gateway := &stubGateway{
		createResult: &stripe.PaymentIntent{ID: "pi_new", ClientSecret: "pi_new_secret"},
	}
	ordersRepo := newStubOrdersRepo()
	svc := newTestService(t, ordersRepo, &stubItemsRepo{item: item}, gateway, &stubNotifier{})

	auth, err := svc.InitiatePurchase(context.Background(), buyerID, item.ID)
	require.NoError(t, err)

	assert.Equal(t, "pi_new", auth.PaymentIntentID)
	assert.Equal(t, "pi_new_secret", auth.ClientSecret)
	assert.True(t, auth.Price.Equal(item.Price))
	assert.Equal(t, "jpy", auth.Currency)

	require.Len(t, ordersRepo.created, 1)
	created := ordersRepo.created[0]
	assert.Equal(t, enums.OrderStatusAwaitingPayment, created.Status)
	assert.Equal(t, buyerID, created.BuyerID)
	assert.Equal(t, item.ID, created.ItemID)
}

func TestInitiatePurchase_rejectsUnlistedItem(t *testing.T) {
	item, _ := newTestFixtures()
	item.Status = enums.ItemStatusSold
	gateway := &stubGateway{}
	svc := newTestService(t, newStubOrdersRepo(), &stubItemsRepo{item: item}, gateway, &stubNotifier{})

	_, err := svc.InitiatePurchase(context.Background(), uuid.New(), item.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeItemUnavailable))
	assert.Zero(t, gateway.createCalls, "gateway must not be called for unavailable items")
}

func TestInitiatePurchase_rejectsMissingItem(t *testing.T) {
	svc := newTestService(t, newStubOrdersRepo(), &stubItemsRepo{}, &stubGateway{}, &stubNotifier{})

	_, err := svc.InitiatePurchase(context.Background(), uuid.New(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeItemUnavailable))
}

func TestInitiatePurchase_rejectsSelfPurchase(t *testing.T) {
	item, _ := newTestFixtures()
	svc := newTestService(t, newStubOrdersRepo(), &stubItemsRepo{item: item}, &stubGateway{}, &stubNotifier{})

	_, err := svc.InitiatePurchase(context.Background(), item.SellerID, item.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCompletePurchase_marksOrderPaidAndNotifiesSeller(t *testing.T) {
	item, order := newTestFixtures()
	itemsRepo := &stubItemsRepo{item: item, soldResult: true}
	notifier := &stubNotifier{}
	gateway := &stubGateway{
		retrieveResult: &stripe.PaymentIntent{ID: order.PaymentIntentID, Status: stripe.PaymentIntentStatusSucceeded},
	}
	svc := newTestService(t, newStubOrdersRepo(order), itemsRepo, gateway, notifier)

	completed, err := svc.CompletePurchase(context.Background(), order.PaymentIntentID)
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPaid, completed.Status)
	assert.Equal(t, enums.ItemStatusSold, item.Status)
	require.Len(t, notifier.tokens, 1)
	assert.Equal(t, "token-seller", notifier.tokens[0])
	assert.Contains(t, notifier.messages[0], item.Name)
}

func TestCompletePurchase_replayReturnsSettledOrder(t *testing.T) {
	item, order := newTestFixtures()
	order.Status = enums.OrderStatusPaid
	itemsRepo := &stubItemsRepo{item: item, soldResult: true}
	notifier := &stubNotifier{}
	gateway := &stubGateway{
		retrieveResult: &stripe.PaymentIntent{ID: order.PaymentIntentID, Status: stripe.PaymentIntentStatusSucceeded},
	}
	svc := newTestService(t, newStubOrdersRepo(order), itemsRepo, gateway, notifier)

	completed, err := svc.CompletePurchase(context.Background(), order.PaymentIntentID)
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPaid, completed.Status)
	assert.Zero(t, itemsRepo.soldCalls, "replay must not touch the item")
	assert.Empty(t, notifier.tokens, "replay must not re-notify")
}

func TestCompletePurchase_conflictWhenItemAlreadySold(t *testing.T) {
	item, order := newTestFixtures()
	itemsRepo := &stubItemsRepo{item: item, soldResult: false}
	gateway := &stubGateway{
		retrieveResult: &stripe.PaymentIntent{ID: order.PaymentIntentID, Status: stripe.PaymentIntentStatusSucceeded},
	}
	svc := newTestService(t, newStubOrdersRepo(order), itemsRepo, gateway, &stubNotifier{})

	_, err := svc.CompletePurchase(context.Background(), order.PaymentIntentID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCompletionConflict))
	assert.Equal(t, enums.OrderStatusAwaitingPayment, order.Status, "losing order must stay awaiting_payment")
}

func TestCompletePurchase_rejectsUnpaidIntent(t *testing.T) {
	item, order := newTestFixtures()
	itemsRepo := &stubItemsRepo{item: item, soldResult: true}
	gateway := &stubGateway{
		retrieveResult: &stripe.PaymentIntent{ID: order.PaymentIntentID, Status: stripe.PaymentIntentStatusRequiresPaymentMethod},
	}
	svc := newTestService(t, newStubOrdersRepo(order), itemsRepo, gateway, &stubNotifier{})

	_, err := svc.CompletePurchase(context.Background(), order.PaymentIntentID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentNotSucceeded))
	assert.Zero(t, itemsRepo.soldCalls)
}

func TestCompletePurchase_unknownIntentIsNotFound(t *testing.T) {
	gateway := &stubGateway{
		retrieveResult: &stripe.PaymentIntent{ID: "pi_unknown", Status: stripe.PaymentIntentStatusSucceeded},
	}
	svc := newTestService(t, newStubOrdersRepo(), &stubItemsRepo{}, gateway, &stubNotifier{})

	_, err := svc.CompletePurchase(context.Background(), "pi_unknown")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCompletePurchase_gatewayFailurePropagates(t *testing.T) {
	gateway := &stubGateway{
		retrieveErr: pkgerrors.Wrap(pkgerrors.CodeGateway, errors.New("boom"), "stripe retrieve payment intent failed"),
	}
	svc := newTestService(t, newStubOrdersRepo(), &stubItemsRepo{}, gateway, &stubNotifier{})

	_, err := svc.CompletePurchase(context.Background(), "pi_any")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
}

func TestCompletePurchase_notifyFailureDoesNotFailCompletion(t *testing.T) {
	item, order := newTestFixtures()
	itemsRepo := &stubItemsRepo{item: item, soldResult: true}
	notifier := &stubNotifier{err: errors.New("push down")}
	gateway := &stubGateway{
		retrieveResult: &stripe.PaymentIntent{ID: order.PaymentIntentID, Status: stripe.PaymentIntentStatusSucceeded},
	}
	svc := newTestService(t, newStubOrdersRepo(order), itemsRepo, gateway, notifier)

	completed, err := svc.CompletePurchase(context.Background(), order.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, completed.Status)
}

func TestMarkShipped_sellerShipsPaidOrder(t *testing.T) {
	item, order := newTestFixtures()
	order.Status = enums.OrderStatusPaid
	notifier := &stubNotifier{}
	svc := newTestService(t, newStubOrdersRepo(order), &stubItemsRepo{item: item}, &stubGateway{}, notifier)

	shipped, err := svc.MarkShipped(context.Background(), item.SellerID, order.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusShipped, shipped.Status)
	require.Len(t, notifier.tokens, 1)
	assert.Equal(t, "token-buyer", notifier.tokens[0])
}

func TestMarkShipped_rejectsNonSeller(t *testing.T) {
	item, order := newTestFixtures()
	order.Status = enums.OrderStatusPaid
	svc := newTestService(t, newStubOrdersRepo(order), &stubItemsRepo{item: item}, &stubGateway{}, &stubNotifier{})

	_, err := svc.MarkShipped(context.Background(), uuid.New(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
}

func TestMarkShipped_rejectsUnpaidOrder(t *testing.T) {
	item, order := newTestFixtures()
	svc := newTestService(t, newStubOrdersRepo(order), &stubItemsRepo{item: item}, &stubGateway{}, &stubNotifier{})

	_, err := svc.MarkShipped(context.Background(), item.SellerID, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.OrderStatusAwaitingPayment, order.Status)
}

func TestMarkShipped_rejectsAlreadyShipped(t *testing.T) {
	item, order := newTestFixtures()
	order.Status = enums.OrderStatusShipped
	svc := newTestService(t, newStubOrdersRepo(order), &stubItemsRepo{item: item}, &stubGateway{}, &stubNotifier{})

	_, err := svc.MarkShipped(context.Background(), item.SellerID, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestGetOrder_allowsBuyerAndSellerOnly(t *testing.T) {
	item, order := newTestFixtures()
	svc := newTestService(t, newStubOrdersRepo(order), &stubItemsRepo{item: item}, &stubGateway{}, &stubNotifier{})

	got, err := svc.GetOrder(context.Background(), order.BuyerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.GetOrder(context.Background(), item.SellerID, order.ID)
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), uuid.New(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestNewService_requiresDependencies(t *testing.T) {
	_, err := NewService(nil, &stubItemsRepo{}, &stubGateway{}, stubTxRunner{}, nil, testLogger(), nil)
	assert.Error(t, err)

	_, err = NewService(newStubOrdersRepo(), &stubItemsRepo{}, &stubGateway{}, stubTxRunner{}, nil, nil, nil)
	assert.Error(t, err)
}
