package repository_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/internal/repository"
	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
	"github.com/calificaprofe/calificaprofe-api/pkg/supabase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRESTSource(t *testing.T, handler http.HandlerFunc) *repository.RESTDataSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return repository.NewRESTDataSource(supabase.NewClient(srv.URL, "anon-key", srv.Client()))
}

func TestRESTDataSource_Query(t *testing.T) {
	var query map[string][]string
	ds := newRESTSource(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Range", "12-12/13")
		_, _ = w.Write([]byte(`[{"teacher_subject_id":7,"full_name":"Rosa Huamán","university":"UNMSM",
			"subject_name":"Física II","average_rating":4.5,"total_reviews":2,"last_review_date":null,
			"latest_positive_comment":"Explica muy bien","latest_constructive_comment":null,"top_tags":null}]`))
	})

	q := models.ListingQuery{Page: 2, SearchTerm: "rosa", Universities: []string{"UNMSM"}}.Normalize(12)
	rows, total, err := ds.Query(context.Background(), q)

	require.NoError(t, err)
	assert.Equal(t, 13, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Rosa Huamán", rows[0].FullName)
	assert.Equal(t, 4.5, rows[0].AverageRating)
	assert.NotNil(t, rows[0].TopTags)
	assert.Nil(t, rows[0].LatestConstructiveComment)

	assert.Equal(t, []string{"12"}, query["offset"])
	assert.Equal(t, []string{"12"}, query["limit"])
	assert.Equal(t, []string{"total_reviews.desc.nullslast,teacher_subject_id.asc.nullslast"}, query["order"])
	assert.Equal(t, []string{"in.(UNMSM)"}, query["university"])
	assert.Equal(t, []string{`(full_name.ilike."*rosa*",subject_name.ilike."*rosa*",university.ilike."*rosa*")`}, query["or"])
	assert.Empty(t, query["subject_name"])
}

func TestRESTDataSource_DistinctFilters(t *testing.T) {
	ds := newRESTSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "university,subject_name,full_name", r.URL.Query().Get("select"))
		_, _ = w.Write([]byte(`[
			{"university":"UNI","subject_name":"Cálculo I","full_name":"Luis Quispe"},
			{"university":"PUCP","subject_name":"Cálculo I","full_name":"Jorge Salas"},
			{"university":null,"subject_name":" ","full_name":"Luis Quispe"}]`))
	})

	opts, err := ds.DistinctFilters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"PUCP", "UNI"}, opts.Universities)
	assert.Equal(t, []string{"Cálculo I"}, opts.Subjects)
	assert.Equal(t, []string{"Jorge Salas", "Luis Quispe"}, opts.Teachers)
}

func TestRESTDataSource_GetProfile(t *testing.T) {
	ds := newRESTSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/Users", r.URL.Path)
		assert.Equal(t, "eq.user-1", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"nickname":"mbayes","role":"student","status":"active"}`))
	})

	p, err := ds.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, p.Nickname)
	assert.Equal(t, "mbayes", *p.Nickname)
	assert.Equal(t, "active", p.Status)
}

func TestRESTDataSource_GetProfileMissing(t *testing.T) {
	ds := newRESTSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"code":"PGRST116","message":"no rows"}`))
	})

	_, err := ds.GetProfile(context.Background(), "user-1")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.True(t, repository.IsDefinitive(err))
}
