package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"go.uber.org/zap"
)

// Seed is the document loaded by the in-memory data source
type Seed struct {
	Teachers []models.TeacherSummary  `json:"teachers"`
	Profiles map[string]models.Profile `json:"profiles"`
}

// MemoryDataSource serves a fixed data set, for local development and tests.
// Latency, when set, delays every call to simulate a slow remote.
type MemoryDataSource struct {
	mu       sync.RWMutex
	rows     []models.TeacherSummary
	profiles map[string]models.Profile
	Latency  time.Duration
}

// NewMemoryDataSource creates a data source over seed
func NewMemoryDataSource(seed Seed) *MemoryDataSource {
	rows := append([]models.TeacherSummary(nil), seed.Teachers...)
	models.SortTeacherSummaries(rows)

	profiles := make(map[string]models.Profile, len(seed.Profiles))
	for id, p := range seed.Profiles {
		profiles[id] = p
	}
	return &MemoryDataSource{rows: rows, profiles: profiles}
}

// LoadMemoryDataSource reads a JSON Seed from path
func LoadMemoryDataSource(path string) (*MemoryDataSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	logger.Info("Loaded in-memory data source",
		zap.String("path", path),
		zap.Int("teachers", len(seed.Teachers)),
		zap.Int("profiles", len(seed.Profiles)))
	return NewMemoryDataSource(seed), nil
}

// Query filters the seeded rows with q and returns the requested page and the match count
func (ds *MemoryDataSource) Query(ctx context.Context, q models.ListingQuery) ([]models.TeacherSummary, int, error) {
	if err := ds.wait(ctx); err != nil {
		return nil, 0, err
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	matched := make([]models.TeacherSummary, 0, len(ds.rows))
	for _, r := range ds.rows {
		if q.Matches(r) {
			matched = append(matched, r)
		}
	}

	total := len(matched)
	from := min(q.Offset(), total)
	to := min(from+q.PageSize, total)
	page := append([]models.TeacherSummary{}, matched[from:to]...)
	return page, total, nil
}

// DistinctFilters derives the filter options from every seeded row
func (ds *MemoryDataSource) DistinctFilters(ctx context.Context) (models.FilterOptions, error) {
	if err := ds.wait(ctx); err != nil {
		return models.FilterOptions{}, err
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return models.DeriveFilterOptions(ds.rows), nil
}

// GetProfile returns a copy of the profile of userID, or a not-found error
func (ds *MemoryDataSource) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if err := ds.wait(ctx); err != nil {
		return nil, err
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()
	p, ok := ds.profiles[userID]
	if !ok {
		return nil, apperrors.NotFoundError("profile")
	}
	return &p, nil
}

// PutProfile creates or replaces the profile of userID
func (ds *MemoryDataSource) PutProfile(userID string, p models.Profile) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.profiles[userID] = p
}

func (ds *MemoryDataSource) wait(ctx context.Context) error {
	if ds.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(ds.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ DataSource = (*MemoryDataSource)(nil)
