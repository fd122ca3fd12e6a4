package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// GetProfile loads the "Users" row for userID
func (c *Client) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	start := time.Now()
	operation := "getProfile"

	query := `SELECT ` + models.ProfileColumns + ` FROM "Users" WHERE id = $1`
	profile, err := models.ScanProfile(c.db.QueryRow(ctx, query, userID))

	duration := metrics.MeasureDuration(start)

	if errors.Is(err, pgx.ErrNoRows) {
		recordMetrics(operation, "not_found", duration)
		return nil, apperrors.NotFoundError("profile")
	}
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogAPICall("postgres", operation, "error", duration, zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration, zap.String("user_id", userID))
	return profile, nil
}
