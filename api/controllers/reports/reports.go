package reports

import (
	"net/http"

	"github.com/harukimori/fleamarket-backend/api/responses"
	"github.com/harukimori/fleamarket-backend/api/validators"
	internalreports "github.com/harukimori/fleamarket-backend/internal/reports"
	pkgerrors "github.com/harukimori/fleamarket-backend/pkg/errors"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
)

// TotalSales returns aggregated revenue for an inclusive date range.
func TotalSales(svc *internalreports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}

		dateRange, err := parseRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.TotalSales(r.Context(), dateRange)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// StatusCounts returns order counts per status for an inclusive date range.
func StatusCounts(svc *internalreports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}

		dateRange, err := parseRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		counts, err := svc.CountByStatus(r.Context(), dateRange)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, counts)
	}
}

func parseRange(r *http.Request) (internalreports.DateRange, error) {
	from, err := validators.ParseQueryDate(r, "from")
	if err != nil {
		return internalreports.DateRange{}, err
	}
	to, err := validators.ParseQueryDate(r, "to")
	if err != nil {
		return internalreports.DateRange{}, err
	}
	return internalreports.DateRange{From: from, To: to}, nil
}
