package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harukimori/fleamarket-backend/pkg/db/models"
)

// PurchaseAuthorization is returned from InitiatePurchase. The client secret
// is handed to the buyer's client to confirm the payment with the gateway.
type PurchaseAuthorization struct {
	OrderID         uuid.UUID       `json:"order_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	ClientSecret    string          `json:"client_secret"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
}

// OrderList is a cursor page of orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
