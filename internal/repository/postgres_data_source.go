package repository

import (
	"context"

	"github.com/calificaprofe/calificaprofe-api/internal/database/postgres"
	"github.com/calificaprofe/calificaprofe-api/internal/models"
)

// PostgresDataSource implements DataSource directly against the database
type PostgresDataSource struct {
	client *postgres.Client
}

// NewPostgresDataSource creates a new PostgreSQL data source
func NewPostgresDataSource(client *postgres.Client) *PostgresDataSource {
	return &PostgresDataSource{client: client}
}

func (ds *PostgresDataSource) Query(ctx context.Context, q models.ListingQuery) ([]models.TeacherSummary, int, error) {
	return ds.client.ListTeacherSummaries(ctx, q)
}

func (ds *PostgresDataSource) DistinctFilters(ctx context.Context) (models.FilterOptions, error) {
	return ds.client.DistinctFilterOptions(ctx)
}

func (ds *PostgresDataSource) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return ds.client.GetProfile(ctx, userID)
}

var _ DataSource = (*PostgresDataSource)(nil)
