package repository

import (
	"context"
	"errors"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/pkg/circuitbreaker"
	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
	"github.com/calificaprofe/calificaprofe-api/pkg/supabase"
	"github.com/sony/gobreaker"
)

// BreakerDataSource guards a DataSource with a circuit breaker. Definitive
// rejections (not found, bad request) and caller cancellations do not count
// as failures; only transport and server errors trip the breaker.
type BreakerDataSource struct {
	next DataSource
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerDataSource wraps next with a breaker built from cfg
func NewBreakerDataSource(next DataSource, cfg circuitbreaker.Config) *BreakerDataSource {
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = countsAsSuccess
	}
	return &BreakerDataSource{next: next, cb: circuitbreaker.NewCircuitBreaker(cfg)}
}

func countsAsSuccess(err error) bool {
	return err == nil || IsDefinitive(err) || errors.Is(err, context.Canceled)
}

// IsDefinitive reports whether err is an answer from the data source rather
// than a failure to reach it. Retrying a definitive error cannot help.
func IsDefinitive(err error) bool {
	if err == nil {
		return false
	}
	return supabase.IsDefinitive(err) || apperrors.Is(err, apperrors.ErrNotFound)
}

type page struct {
	rows  []models.TeacherSummary
	total int
}

func (ds *BreakerDataSource) Query(ctx context.Context, q models.ListingQuery) ([]models.TeacherSummary, int, error) {
	p, err := circuitbreaker.Execute(ds.cb, func() (page, error) {
		rows, total, err := ds.next.Query(ctx, q)
		return page{rows: rows, total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return p.rows, p.total, nil
}

func (ds *BreakerDataSource) DistinctFilters(ctx context.Context) (models.FilterOptions, error) {
	return circuitbreaker.Execute(ds.cb, func() (models.FilterOptions, error) {
		return ds.next.DistinctFilters(ctx)
	})
}

func (ds *BreakerDataSource) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return circuitbreaker.Execute(ds.cb, func() (*models.Profile, error) {
		return ds.next.GetProfile(ctx, userID)
	})
}

// State exposes the breaker state for health reporting
func (ds *BreakerDataSource) State() gobreaker.State {
	return ds.cb.State()
}

var _ DataSource = (*BreakerDataSource)(nil)
