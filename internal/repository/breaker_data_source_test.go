package repository_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/internal/repository"
	"github.com/calificaprofe/calificaprofe-api/pkg/circuitbreaker"
	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySource struct {
	calls atomic.Int32
	err   error
}

func (f *flakySource) Query(context.Context, models.ListingQuery) ([]models.TeacherSummary, int, error) {
	f.calls.Add(1)
	return nil, 0, f.err
}

func (f *flakySource) DistinctFilters(context.Context) (models.FilterOptions, error) {
	f.calls.Add(1)
	return models.FilterOptions{}, f.err
}

func (f *flakySource) GetProfile(context.Context, string) (*models.Profile, error) {
	f.calls.Add(1)
	return nil, f.err
}

func testBreakerConfig(name string) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig(name)
	cfg.Timeout = time.Minute
	return cfg
}

func TestBreakerDataSource_TripsOnUnavailable(t *testing.T) {
	src := &flakySource{err: apperrors.UnavailableError("rest", assert.AnError)}
	ds := repository.NewBreakerDataSource(src, testBreakerConfig("test-trip"))

	for i := 0; i < 3; i++ {
		_, _, err := ds.Query(context.Background(), models.ListingQuery{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, ds.State())

	_, _, err := ds.Query(context.Background(), models.ListingQuery{})
	assert.True(t, circuitbreaker.IsRejection(err))
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestBreakerDataSource_NotFoundDoesNotTrip(t *testing.T) {
	src := &flakySource{err: apperrors.NotFoundError("profile")}
	ds := repository.NewBreakerDataSource(src, testBreakerConfig("test-notfound"))

	for i := 0; i < 5; i++ {
		_, err := ds.GetProfile(context.Background(), "user-1")
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	}
	assert.Equal(t, gobreaker.StateClosed, ds.State())
	assert.Equal(t, int32(5), src.calls.Load())
}
