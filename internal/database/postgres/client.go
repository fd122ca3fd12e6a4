package postgres

import (
	"context"

	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgxpool.Pool the queries need
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Client runs the read-model queries with observability
type Client struct {
	db   Querier
	pool *pgxpool.Pool
}

// NewClient wraps an open pool (see pkg/db.NewPool)
func NewClient(pool *pgxpool.Pool) *Client {
	return &Client{db: pool, pool: pool}
}

// NewClientWithQuerier wraps any Querier, e.g. a transaction
func NewClientWithQuerier(db Querier) *Client {
	return &Client{db: db}
}

// Close closes the connection pool when the client owns one
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
		logger.Info("PostgreSQL connection pool closed")
	}
}

// Ping checks if the database connection is alive
func (c *Client) Ping(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	return c.pool.Ping(ctx)
}

// recordMetrics records database operation metrics
func recordMetrics(operation, status string, duration float64) {
	metrics.RemoteRequestDuration.WithLabelValues("postgres_"+operation, status).Observe(duration)
	metrics.RemoteRequestTotal.WithLabelValues("postgres_"+operation, status).Inc()
}
