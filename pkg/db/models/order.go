package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harukimori/fleamarket-backend/pkg/enums"
)

// Order records one purchase attempt and its outcome. PaymentIntentID is the
// gateway's identifier and the idempotency key: exactly one order exists per
// intent, enforced by the unique index. Price is snapshotted from the item at
// authorization time and never re-read. Orders are never deleted.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID          uuid.UUID         `gorm:"column:item_id;type:uuid;not null"`
	BuyerID         uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	Price           decimal.Decimal   `gorm:"column:price;type:numeric(10,2);not null"`
	Currency        string            `gorm:"column:currency;not null;default:'jpy'"`
	Status          enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'awaiting_payment'"`
	PaymentIntentID string            `gorm:"column:payment_intent_id;not null;uniqueIndex:ux_orders_payment_intent_id"`
	Item            *Item             `gorm:"foreignKey:ItemID"`
	Buyer           *User             `gorm:"foreignKey:BuyerID"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
