package services

import (
	"context"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/internal/session"
)

// ListingServiceInterface defines the interface for teacher listing operations
type ListingServiceInterface interface {
	GetListing(ctx context.Context, q models.ListingQuery) (*models.ListingSnapshot, <-chan models.ListingSnapshot, error)
	GetDistinctFilters(ctx context.Context) (models.FilterOptions, error)
	Invalidate(ctx context.Context, q models.ListingQuery)
}

// SessionServiceInterface defines the interface for session operations.
// It is implemented by *session.Controller.
type SessionServiceInterface interface {
	Snapshot() session.State
	Subscribe() (<-chan session.State, func())
	SignIn(ctx context.Context, email, password string) (session.State, error)
	SignUp(ctx context.Context, email, password string) (session.State, bool, error)
	SignOut(ctx context.Context) (session.State, error)
}

var (
	_ ListingServiceInterface = (*ListingService)(nil)
	_ SessionServiceInterface = (*session.Controller)(nil)
)
