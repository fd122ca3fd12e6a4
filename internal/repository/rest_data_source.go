package repository

import (
	"context"
	"fmt"

	"github.com/supabase-community/postgrest-go"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/pkg/supabase"
)

var searchColumns = []string{"full_name", "subject_name", "university"}

// RESTDataSource implements DataSource over the hosted PostgREST API
type RESTDataSource struct {
	client *supabase.Client
}

// NewRESTDataSource creates a REST data source
func NewRESTDataSource(client *supabase.Client) *RESTDataSource {
	return &RESTDataSource{client: client}
}

// Query fetches one page of teacher_summary with an exact count
func (ds *RESTDataSource) Query(ctx context.Context, q models.ListingQuery) ([]models.TeacherSummary, int, error) {
	rows := []models.TeacherSummary{}
	total, err := ds.client.Rest(ctx, "select teacher_summary", func(rest *postgrest.Client) *postgrest.FilterBuilder {
		query := rest.From("teacher_summary").
			Select(models.TeacherSummaryColumns, supabase.CountExact, false).
			Order("total_reviews", &postgrest.OrderOpts{Ascending: false}).
			Order("teacher_subject_id", &postgrest.OrderOpts{Ascending: true}).
			Range(q.Offset(), q.Offset()+q.PageSize-1, "")
		if len(q.Universities) > 0 {
			query = query.In("university", q.Universities)
		}
		if len(q.Subjects) > 0 {
			query = query.In("subject_name", q.Subjects)
		}
		if len(q.Teachers) > 0 {
			query = query.In("full_name", q.Teachers)
		}
		if filter := supabase.IlikeAny(searchColumns, q.SearchTerm); filter != "" {
			query = query.Or(filter, "")
		}
		return query
	}, &rows)
	if err != nil {
		return nil, 0, err
	}

	for i := range rows {
		if rows[i].TopTags == nil {
			rows[i].TopTags = []string{}
		}
	}
	if total < len(rows) {
		total = q.Offset() + len(rows)
	}
	return rows, total, nil
}

// DistinctFilters projects the three filter columns and de-duplicates them locally
func (ds *RESTDataSource) DistinctFilters(ctx context.Context) (models.FilterOptions, error) {
	var rows []struct {
		University  *string `json:"university"`
		SubjectName *string `json:"subject_name"`
		FullName    *string `json:"full_name"`
	}
	_, err := ds.client.Rest(ctx, "select filter options", func(rest *postgrest.Client) *postgrest.FilterBuilder {
		return rest.From("teacher_summary").Select("university, subject_name, full_name", "", false)
	}, &rows)
	if err != nil {
		return models.FilterOptions{}, fmt.Errorf("fetch filter options: %w", err)
	}

	var universities, subjects, teachers []string
	for _, r := range rows {
		if r.University != nil {
			universities = append(universities, *r.University)
		}
		if r.SubjectName != nil {
			subjects = append(subjects, *r.SubjectName)
		}
		if r.FullName != nil {
			teachers = append(teachers, *r.FullName)
		}
	}
	return models.FilterOptions{
		Universities: models.SortedUnique(universities),
		Subjects:     models.SortedUnique(subjects),
		Teachers:     models.SortedUnique(teachers),
	}, nil
}

// GetProfile loads the "Users" row of userID
func (ds *RESTDataSource) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	_, err := ds.client.Rest(ctx, "select Users", func(rest *postgrest.Client) *postgrest.FilterBuilder {
		return rest.From("Users").
			Select(models.ProfileColumns, "", false).
			Eq("id", userID).
			Single()
	}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

var _ DataSource = (*RESTDataSource)(nil)
