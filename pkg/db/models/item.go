package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harukimori/fleamarket-backend/pkg/enums"
)

// Item is a single-quantity listing. Its status column is the only mutual
// exclusion point for selling: it moves to sold exclusively through the
// conditional update in the items repository.
type Item struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID    uuid.UUID        `gorm:"column:seller_id;type:uuid;not null"`
	Name        string           `gorm:"column:name;not null"`
	Description *string          `gorm:"column:description"`
	Price       decimal.Decimal  `gorm:"column:price;type:numeric(10,2);not null"`
	Currency    string           `gorm:"column:currency;not null;default:'jpy'"`
	Status      enums.ItemStatus `gorm:"column:status;type:item_status;not null;default:'listed'"`
	Seller      *User            `gorm:"foreignKey:SellerID"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
