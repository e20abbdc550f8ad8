package items

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harukimori/fleamarket-backend/pkg/db/models"
	"github.com/harukimori/fleamarket-backend/pkg/enums"
)

// Repository defines persistence operations for item listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
	TrySetSold(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an items repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	err := r.db.WithContext(ctx).
		Preload("Seller").
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// TrySetSold flips the listing to sold only when it is still listed. The
// conditional update is the single mutual-exclusion point for selling an
// item: a false return means a competing order already won.
func (r *repository) TrySetSold(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ? AND status = ?", id, enums.ItemStatusListed).
		Update("status", enums.ItemStatusSold)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
