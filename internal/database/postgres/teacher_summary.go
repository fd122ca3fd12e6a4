package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"go.uber.org/zap"
)

// searchColumns are matched case-insensitively against the search term
var searchColumns = []string{"full_name", "subject_name", "university"}

// ListTeacherSummaries returns one page of teacher_summary and the total match count
func (c *Client) ListTeacherSummaries(ctx context.Context, q models.ListingQuery) ([]models.TeacherSummary, int, error) {
	start := time.Now()
	operation := "listTeacherSummaries"

	where, args := listingFilter(q)

	var total int
	countSQL := "SELECT count(*) FROM teacher_summary" + where
	if err := c.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		duration := metrics.MeasureDuration(start)
		recordMetrics(operation, "error", duration)
		logger.LogAPICall("postgres", operation, "error", duration, zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count teacher summaries: %w", err)
	}

	pageSQL := fmt.Sprintf(
		"SELECT %s FROM teacher_summary%s ORDER BY total_reviews DESC, teacher_subject_id ASC LIMIT $%d OFFSET $%d",
		models.TeacherSummaryColumns, where, len(args)+1, len(args)+2,
	)
	rows, err := c.db.Query(ctx, pageSQL, append(args, q.PageSize, q.Offset())...)
	if err != nil {
		duration := metrics.MeasureDuration(start)
		recordMetrics(operation, "error", duration)
		logger.LogAPICall("postgres", operation, "error", duration, zap.Error(err))
		return nil, 0, fmt.Errorf("failed to query teacher summaries: %w", err)
	}

	summaries, err := models.ScanTeacherSummaries(rows)
	if err != nil {
		duration := metrics.MeasureDuration(start)
		recordMetrics(operation, "error", duration)
		return nil, 0, fmt.Errorf("failed to scan teacher summary row: %w", err)
	}

	duration := metrics.MeasureDuration(start)
	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration,
		zap.Int("count", len(summaries)),
		zap.Int("total", total))

	return summaries, total, nil
}

// DistinctFilterOptions projects the filter values out of teacher_summary
func (c *Client) DistinctFilterOptions(ctx context.Context) (models.FilterOptions, error) {
	start := time.Now()
	operation := "distinctFilterOptions"

	rows, err := c.db.Query(ctx, "SELECT DISTINCT university, subject_name, full_name FROM teacher_summary")
	if err != nil {
		duration := metrics.MeasureDuration(start)
		recordMetrics(operation, "error", duration)
		logger.LogAPICall("postgres", operation, "error", duration, zap.Error(err))
		return models.FilterOptions{}, fmt.Errorf("failed to query filter options: %w", err)
	}
	defer rows.Close()

	var universities, subjects, teachers []string
	for rows.Next() {
		var university, subject, teacher *string
		if err := rows.Scan(&university, &subject, &teacher); err != nil {
			recordMetrics(operation, "error", metrics.MeasureDuration(start))
			return models.FilterOptions{}, fmt.Errorf("failed to scan filter option row: %w", err)
		}
		universities = appendNonNull(universities, university)
		subjects = appendNonNull(subjects, subject)
		teachers = appendNonNull(teachers, teacher)
	}
	if err := rows.Err(); err != nil {
		recordMetrics(operation, "error", metrics.MeasureDuration(start))
		return models.FilterOptions{}, fmt.Errorf("error iterating filter option rows: %w", err)
	}

	opts := models.FilterOptions{
		Universities: models.SortedUnique(universities),
		Subjects:     models.SortedUnique(subjects),
		Teachers:     models.SortedUnique(teachers),
	}

	duration := metrics.MeasureDuration(start)
	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration,
		zap.Int("universities", len(opts.Universities)),
		zap.Int("subjects", len(opts.Subjects)),
		zap.Int("teachers", len(opts.Teachers)))

	return opts, nil
}

// listingFilter renders the WHERE clause for q with positional arguments
func listingFilter(q models.ListingQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if term := strings.TrimSpace(q.SearchTerm); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		alts := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			alts[i] = fmt.Sprintf("%s ILIKE $%d", col, n)
		}
		clauses = append(clauses, "("+strings.Join(alts, " OR ")+")")
	}

	for _, f := range []struct {
		column string
		values []string
	}{
		{"university", q.Universities},
		{"subject_name", q.Subjects},
		{"full_name", q.Teachers},
	} {
		if len(f.values) == 0 {
			continue
		}
		args = append(args, f.values)
		clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", f.column, len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(term)
}

func appendNonNull(values []string, v *string) []string {
	if v == nil {
		return values
	}
	return append(values, *v)
}
