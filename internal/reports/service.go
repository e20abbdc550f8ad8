package reports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/harukimori/fleamarket-backend/pkg/db/models"
	"github.com/harukimori/fleamarket-backend/pkg/enums"
	pkgerrors "github.com/harukimori/fleamarket-backend/pkg/errors"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
)

// DateRange is an inclusive day range for report queries.
type DateRange struct {
	From time.Time
	To   time.Time
}

// SalesSummary is the aggregated revenue for a range.
type SalesSummary struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	OrderCount int64           `json:"order_count"`
	TotalSales decimal.Decimal `json:"total_sales"`
}

// StatusCounts maps each order status to its count within a range.
type StatusCounts struct {
	From   time.Time        `json:"from"`
	To     time.Time        `json:"to"`
	Counts map[string]int64 `json:"counts"`
}

// Service computes reporting aggregates directly in SQL.
type Service struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewService wires the reports service.
func NewService(db *gorm.DB, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{db: db, logger: logg}, nil
}

// TotalSales sums the revenue of completed orders created within the range.
// Completed means paid or shipped; pending authorizations never count.
func (s *Service) TotalSales(ctx context.Context, r DateRange) (*SalesSummary, error) {
	if err := validateRange(r); err != nil {
		return nil, err
	}

	var row struct {
		OrderCount int64
		TotalSales decimal.Decimal
	}
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COUNT(*) AS order_count, COALESCE(SUM(price), 0) AS total_sales").
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusShipped}).
		Where("created_at >= ? AND created_at < ?", r.From, upperBound(r)).
		Scan(&row).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregating sales")
	}

	return &SalesSummary{
		From:       r.From,
		To:         r.To,
		OrderCount: row.OrderCount,
		TotalSales: row.TotalSales,
	}, nil
}

// CountByStatus counts orders per status created within the range. Statuses
// with no orders are reported as zero.
func (s *Service) CountByStatus(ctx context.Context, r DateRange) (*StatusCounts, error) {
	if err := validateRange(r); err != nil {
		return nil, err
	}

	var rows []struct {
		Status enums.OrderStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, COUNT(*) AS count").
		Where("created_at >= ? AND created_at < ?", r.From, upperBound(r)).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting orders by status")
	}

	counts := map[string]int64{
		enums.OrderStatusAwaitingPayment.String(): 0,
		enums.OrderStatusPaid.String():            0,
		enums.OrderStatusShipped.String():         0,
	}
	for _, row := range rows {
		counts[row.Status.String()] = row.Count
	}

	return &StatusCounts{
		From:   r.From,
		To:     r.To,
		Counts: counts,
	}, nil
}

// The range is inclusive of the final day, so the SQL upper bound is the
// start of the following day.
func upperBound(r DateRange) time.Time {
	return r.To.Add(24 * time.Hour)
}

func validateRange(r DateRange) error {
	if r.From.IsZero() || r.To.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "from and to dates are required")
	}
	if r.To.Before(r.From) {
		return pkgerrors.New(pkgerrors.CodeValidation, "to date must not precede from date")
	}
	return nil
}
