package orders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/harukimori/fleamarket-backend/api/middleware"
	"github.com/harukimori/fleamarket-backend/internal/items"
	internalorders "github.com/harukimori/fleamarket-backend/internal/orders"
	"github.com/harukimori/fleamarket-backend/pkg/db/models"
	"github.com/harukimori/fleamarket-backend/pkg/enums"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
	"github.com/harukimori/fleamarket-backend/pkg/metrics"
	"github.com/harukimori/fleamarket-backend/pkg/pagination"
)

type fakeOrdersRepo struct {
	byIntent map[string]*models.Order
	byID     map[uuid.UUID]*models.Order
}

func newFakeOrdersRepo(orders ...*models.Order) *fakeOrdersRepo {
	repo := &fakeOrdersRepo{
		byIntent: map[string]*models.Order{},
		byID:     map[uuid.UUID]*models.Order{},
	}
	for _, order := range orders {
		repo.byIntent[order.PaymentIntentID] = order
		repo.byID[order.ID] = order
	}
	return repo
}

func (r *fakeOrdersRepo) WithTx(tx *gorm.DB) internalorders.Repository { return r }

func (r *fakeOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	r.byIntent[order.PaymentIntentID] = order
	r.byID[order.ID] = order
	return order, nil
}

func (r *fakeOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := r.byID[id]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeOrdersRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeOrdersRepo) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	if order, ok := r.byIntent[intentID]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeOrdersRepo) FindByPaymentIntentIDForUpdate(ctx context.Context, intentID string) (*models.Order, error) {
	return r.FindByPaymentIntentID(ctx, intentID)
}

func (r *fakeOrdersRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	order, ok := r.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	order.Status = status
	return nil
}

func (r *fakeOrdersRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	return &internalorders.OrderList{}, nil
}

func (r *fakeOrdersRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	return &internalorders.OrderList{}, nil
}

func (r *fakeOrdersRepo) FindAwaitingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

type fakeItemsRepo struct {
	item *models.Item
}

func (r *fakeItemsRepo) WithTx(tx *gorm.DB) items.Repository { return r }

func (r *fakeItemsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	if r.item == nil || r.item.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return r.item, nil
}

func (r *fakeItemsRepo) TrySetSold(ctx context.Context, id uuid.UUID) (bool, error) {
	if r.item != nil && r.item.Status == enums.ItemStatusListed {
		r.item.Status = enums.ItemStatusSold
		return true, nil
	}
	return false, nil
}

type fakeGateway struct{}

func (fakeGateway) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, description string) (*stripe.PaymentIntent, error) {
	return &stripe.PaymentIntent{ID: "pi_ctrl_test", ClientSecret: "pi_ctrl_test_secret"}, nil
}

func (fakeGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	return &stripe.PaymentIntent{ID: intentID, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newControllerService(t *testing.T, ordersRepo *fakeOrdersRepo, itemsRepo *fakeItemsRepo) *internalorders.Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := internalorders.NewService(ordersRepo, itemsRepo, fakeGateway{}, fakeTxRunner{}, nil, logg, metrics.NewPurchaseMetrics(nil))
	require.NoError(t, err)
	return svc
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	return req
}

func TestInitiate_requiresAuthentication(t *testing.T) {
	svc := newControllerService(t, newFakeOrdersRepo(), &fakeItemsRepo{})
	handler := Initiate(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders", `{}`, uuid.Nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInitiate_rejectsInvalidBody(t *testing.T) {
	svc := newControllerService(t, newFakeOrdersRepo(), &fakeItemsRepo{})
	handler := Initiate(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders", `{"item_id":"not-a-uuid"}`, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitiate_returnsAuthorization(t *testing.T) {
	item := &models.Item{
		ID:       uuid.New(),
		SellerID: uuid.New(),
		Name:     "Tea set",
		Price:    decimal.NewFromInt(3000),
		Currency: "jpy",
		Status:   enums.ItemStatusListed,
	}
	svc := newControllerService(t, newFakeOrdersRepo(), &fakeItemsRepo{item: item})
	handler := Initiate(svc, nil)

	body := `{"item_id":"` + item.ID.String() + `"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders", body, uuid.New()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envelope struct {
		Data internalorders.PurchaseAuthorization `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "pi_ctrl_test", envelope.Data.PaymentIntentID)
	assert.Equal(t, "pi_ctrl_test_secret", envelope.Data.ClientSecret)
}

func TestInitiate_unavailableItemConflicts(t *testing.T) {
	svc := newControllerService(t, newFakeOrdersRepo(), &fakeItemsRepo{})
	handler := Initiate(svc, nil)

	body := `{"item_id":"` + uuid.NewString() + `"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders", body, uuid.New()))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestComplete_rejectsMissingIntentID(t *testing.T) {
	svc := newControllerService(t, newFakeOrdersRepo(), &fakeItemsRepo{})
	handler := Complete(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders/complete", `{}`, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShip_rejectsInvalidOrderID(t *testing.T) {
	svc := newControllerService(t, newFakeOrdersRepo(), &fakeItemsRepo{})

	router := newShipRouter(svc)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/orders/not-a-uuid/ship", "", uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShip_forbidsNonSeller(t *testing.T) {
	item := &models.Item{
		ID:       uuid.New(),
		SellerID: uuid.New(),
		Name:     "Tea set",
		Price:    decimal.NewFromInt(3000),
		Currency: "jpy",
		Status:   enums.ItemStatusSold,
	}
	order := &models.Order{
		ID:              uuid.New(),
		ItemID:          item.ID,
		BuyerID:         uuid.New(),
		Price:           item.Price,
		Currency:        "jpy",
		Status:          enums.OrderStatusPaid,
		PaymentIntentID: "pi_ship",
		Item:            item,
	}
	svc := newControllerService(t, newFakeOrdersRepo(order), &fakeItemsRepo{item: item})

	router := newShipRouter(svc)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/orders/"+order.ID.String()+"/ship", "", uuid.New()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func newShipRouter(svc *internalorders.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/orders/{orderId}/ship", Ship(svc, nil))
	return r
}
