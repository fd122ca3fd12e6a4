package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []TeacherSummary {
	return []TeacherSummary{
		{TeacherSubjectID: 1, FullName: "Prof. Mariana Bayeslian", University: "UNI", SubjectName: "Estadística", TotalReviews: 14},
		{TeacherSubjectID: 2, FullName: "Dr. Jorge Quispe", University: "PUCP", SubjectName: "Cálculo I", TotalReviews: 30},
		{TeacherSubjectID: 3, FullName: "Lic. Rosa Huamán", University: "UNMSM", SubjectName: "Física II", TotalReviews: 5},
		{TeacherSubjectID: 4, FullName: "Ing. Carlos Ramos", University: "UNI", SubjectName: "Programación", TotalReviews: 30},
	}
}

func TestListingQuery_MatchesSearchTermCaseInsensitive(t *testing.T) {
	for _, term := range []string{"Bayeslian", "bayeslian", "BAYESLIAN", "  bAyEsLiAn "} {
		q := ListingQuery{SearchTerm: term}

		var matched []TeacherSummary
		for _, row := range sampleRows() {
			if q.Matches(row) {
				matched = append(matched, row)
			}
		}

		require.Len(t, matched, 1, "term %q", term)
		assert.Equal(t, "Prof. Mariana Bayeslian", matched[0].FullName)
	}
}

func TestListingQuery_MatchesAcrossColumnsAndSets(t *testing.T) {
	rows := sampleRows()

	assert.True(t, ListingQuery{SearchTerm: "cálculo"}.Matches(rows[1]))
	assert.True(t, ListingQuery{SearchTerm: "unmsm"}.Matches(rows[2]))
	assert.False(t, ListingQuery{SearchTerm: "quantum"}.Matches(rows[0]))

	byUni := ListingQuery{Universities: []string{"UNI"}}
	assert.True(t, byUni.Matches(rows[0]))
	assert.False(t, byUni.Matches(rows[1]))

	combined := ListingQuery{Universities: []string{"UNI"}, Subjects: []string{"Programación"}}
	assert.False(t, combined.Matches(rows[0]))
	assert.True(t, combined.Matches(rows[3]))
}

func TestListingQuery_Normalize(t *testing.T) {
	q := ListingQuery{
		Page:         0,
		PageSize:     500,
		SearchTerm:   "  rosa ",
		Universities: []string{"UNMSM", "", "PUCP", "UNMSM"},
	}.Normalize(12)

	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxPageSize, q.PageSize)
	assert.Equal(t, "rosa", q.SearchTerm)
	assert.Equal(t, []string{"PUCP", "UNMSM"}, q.Universities)
	assert.Equal(t, []string{}, q.Subjects)

	assert.Equal(t, 12, ListingQuery{}.Normalize(12).PageSize)
	assert.Equal(t, DefaultPageSize, ListingQuery{}.Normalize(0).PageSize)
}

func TestListingQuery_Offset(t *testing.T) {
	assert.Equal(t, 0, ListingQuery{Page: 1, PageSize: 12}.Offset())
	assert.Equal(t, 24, ListingQuery{Page: 3, PageSize: 12}.Offset())
	assert.Equal(t, 0, ListingQuery{Page: 0, PageSize: 12}.Offset())
}

func TestListingQuery_CacheKeyIsCanonical(t *testing.T) {
	a := ListingQuery{Page: 2, SearchTerm: "Rosa", Universities: []string{"UNMSM", "PUCP"}}.Normalize(12)
	b := ListingQuery{Page: 2, SearchTerm: " rosa", Universities: []string{"PUCP", "UNMSM", "PUCP"}}.Normalize(12)
	c := ListingQuery{Page: 3, SearchTerm: "rosa", Universities: []string{"PUCP", "UNMSM"}}.Normalize(12)

	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
	assert.NotEqual(t, ListingQuery{}.Normalize(12).CacheKey(), a.CacheKey())
}

func TestListingQuery_IsDefault(t *testing.T) {
	assert.True(t, ListingQuery{}.Normalize(12).IsDefault())
	assert.False(t, ListingQuery{Page: 2}.Normalize(12).IsDefault())
	assert.False(t, ListingQuery{Subjects: []string{"Física II"}}.Normalize(12).IsDefault())
}

func TestSortTeacherSummaries(t *testing.T) {
	rows := sampleRows()
	SortTeacherSummaries(rows)

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.TeacherSubjectID
	}
	assert.Equal(t, []int64{2, 4, 1, 3}, ids)
}

func TestDeriveFilterOptions(t *testing.T) {
	opts := DeriveFilterOptions(sampleRows())

	assert.Equal(t, []string{"PUCP", "UNI", "UNMSM"}, opts.Universities)
	assert.Equal(t, []string{"Cálculo I", "Estadística", "Física II", "Programación"}, opts.Subjects)
	assert.Len(t, opts.Teachers, 4)
	assert.False(t, opts.Empty())
	assert.True(t, FilterOptions{}.Empty())
}

func TestCachedListing_Written(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := CachedListing{WrittenAt: at.UnixMilli()}
	assert.True(t, c.Written().Equal(at))
}

func TestRelativeUpdated(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	tests := []struct {
		name string
		in   *time.Time
		want string
	}{
		{"missing", nil, "Sin fecha"},
		{"minutes", at(10 * time.Minute), "Actualizado hace unos minutos"},
		{"hours", at(5 * time.Hour), "Actualizado hace unas horas"},
		{"one day", at(30 * time.Hour), "Actualizado hace un día"},
		{"several days", at(5*24*time.Hour + time.Hour), "Actualizado hace 5 días"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeUpdated(tt.in, now))
		})
	}
}
