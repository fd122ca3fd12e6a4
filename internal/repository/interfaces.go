package repository

import (
	"context"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
)

// TeacherDataSource reads the teacher_summary read model.
// Implementations exist for the hosted REST API, Postgres and an in-memory seed.
type TeacherDataSource interface {
	// Query returns the page described by q (already normalized) and the total match count
	Query(ctx context.Context, q models.ListingQuery) ([]models.TeacherSummary, int, error)

	// DistinctFilters returns the sorted, de-duplicated filter option sets
	DistinctFilters(ctx context.Context) (models.FilterOptions, error)
}

// ProfileSource loads the application profile joined onto an auth user
type ProfileSource interface {
	// GetProfile returns the "Users" row for userID or an ErrNotFound error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// DataSource is the full remote data API
type DataSource interface {
	TeacherDataSource
	ProfileSource
}
