package models

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/text/cases"
)

// TeacherSummary is one teacher-subject pairing with its aggregated review stats.
// Rows come pre-aggregated from the teacher_summary read model.
type TeacherSummary struct {
	TeacherSubjectID          int64      `json:"teacher_subject_id"`
	FullName                  string     `json:"full_name"`
	University                string     `json:"university"`
	SubjectName               string     `json:"subject_name"`
	AverageRating             float64    `json:"average_rating"`
	TotalReviews              int        `json:"total_reviews"`
	LastReviewDate            *time.Time `json:"last_review_date"`
	LatestPositiveComment     *string    `json:"latest_positive_comment"`
	LatestConstructiveComment *string    `json:"latest_constructive_comment"`
	TopTags                   []string   `json:"top_tags"`
}

// TeacherSummaryColumns lists the read model columns in scan order
const TeacherSummaryColumns = "teacher_subject_id, full_name, university, subject_name, average_rating, " +
	"total_reviews, last_review_date, latest_positive_comment, latest_constructive_comment, top_tags"

// Listing bounds
const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// ListingQuery describes one page of the teacher listing
type ListingQuery struct {
	Page         int      `form:"page" binding:"omitempty,min=1"`
	PageSize     int      `form:"page_size" binding:"omitempty,min=1,max=100"`
	SearchTerm   string   `form:"q" binding:"max=100"`
	Universities []string `form:"university" binding:"max=50,dive,max=200"`
	Subjects     []string `form:"subject" binding:"max=50,dive,max=200"`
	Teachers     []string `form:"teacher" binding:"max=50,dive,max=200"`
}

// Normalize returns the canonical form of q: page at least 1, page size within
// bounds, trimmed search term, sorted de-duplicated filter sets.
func (q ListingQuery) Normalize(defaultPageSize int) ListingQuery {
	if defaultPageSize < 1 {
		defaultPageSize = DefaultPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.SearchTerm = strings.TrimSpace(q.SearchTerm)
	q.Universities = SortedUnique(q.Universities)
	q.Subjects = SortedUnique(q.Subjects)
	q.Teachers = SortedUnique(q.Teachers)
	return q
}

// Offset is the zero-based index of the first row on the page
func (q ListingQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// HasFilters reports whether any search term or filter set is active
func (q ListingQuery) HasFilters() bool {
	return q.SearchTerm != "" || len(q.Universities) > 0 || len(q.Subjects) > 0 || len(q.Teachers) > 0
}

// IsDefault reports whether q is the unfiltered first page
func (q ListingQuery) IsDefault() bool {
	return q.Page <= 1 && !q.HasFilters()
}

// CacheKey serializes a normalized query. Equal queries produce equal keys.
func (q ListingQuery) CacheKey() string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("size", strconv.Itoa(q.PageSize))
	if q.SearchTerm != "" {
		v.Set("q", foldCase(q.SearchTerm))
	}
	for _, u := range q.Universities {
		v.Add("university", u)
	}
	for _, s := range q.Subjects {
		v.Add("subject", s)
	}
	for _, t := range q.Teachers {
		v.Add("teacher", t)
	}
	return "listing:" + v.Encode()
}

// Matches applies the listing predicate to a single row: a case-insensitive
// substring match on name, subject or university, and membership in every
// non-empty filter set.
func (q ListingQuery) Matches(row TeacherSummary) bool {
	if term := strings.TrimSpace(q.SearchTerm); term != "" {
		needle := foldCase(term)
		if !strings.Contains(foldCase(row.FullName), needle) &&
			!strings.Contains(foldCase(row.SubjectName), needle) &&
			!strings.Contains(foldCase(row.University), needle) {
			return false
		}
	}
	return inSet(q.Universities, row.University) &&
		inSet(q.Subjects, row.SubjectName) &&
		inSet(q.Teachers, row.FullName)
}

func inSet(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}

func foldCase(s string) string {
	return cases.Fold().String(s)
}

// SortTeacherSummaries orders rows by total reviews, most reviewed first.
// Ties keep a stable order by teacher subject id.
func SortTeacherSummaries(rows []TeacherSummary) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalReviews != rows[j].TotalReviews {
			return rows[i].TotalReviews > rows[j].TotalReviews
		}
		return rows[i].TeacherSubjectID < rows[j].TeacherSubjectID
	})
}

// CachedListing is the persisted form of a listing page
type CachedListing struct {
	Rows       []TeacherSummary `json:"data"`
	TotalCount int              `json:"total"`
	WrittenAt  int64            `json:"timestamp"` // unix milliseconds
}

// Written returns the write time
func (c *CachedListing) Written() time.Time {
	return time.UnixMilli(c.WrittenAt)
}

// ListingSource tells where a snapshot came from
type ListingSource string

const (
	SourceRemote ListingSource = "remote"
	SourceCache  ListingSource = "cache"
	SourceEmpty  ListingSource = "empty"
)

// ListingSnapshot is what the listing endpoint renders
type ListingSnapshot struct {
	Rows       []TeacherSummary `json:"rows"`
	TotalCount int              `json:"totalCount"`
	Source     ListingSource    `json:"source"`
	Loading    bool             `json:"loading"`
	Stale      bool             `json:"stale"`
	FetchedAt  time.Time        `json:"fetchedAt"`
}

// EmptySnapshot is the renderable result when nothing could be loaded
func EmptySnapshot(now time.Time) ListingSnapshot {
	return ListingSnapshot{Rows: []TeacherSummary{}, Source: SourceEmpty, FetchedAt: now}
}

// FilterOptions are the values offered by the listing filters
type FilterOptions struct {
	Universities []string `json:"universities"`
	Subjects     []string `json:"subjects"`
	Teachers     []string `json:"teachers"`
}

// Empty reports whether no option set has values
func (f FilterOptions) Empty() bool {
	return len(f.Universities) == 0 && len(f.Subjects) == 0 && len(f.Teachers) == 0
}

// CachedFilters is the persisted form of FilterOptions
type CachedFilters struct {
	Options   FilterOptions `json:"data"`
	WrittenAt int64         `json:"timestamp"` // unix milliseconds
}

// DeriveFilterOptions projects the distinct filter values out of summary rows
func DeriveFilterOptions(rows []TeacherSummary) FilterOptions {
	universities := make([]string, 0, len(rows))
	subjects := make([]string, 0, len(rows))
	teachers := make([]string, 0, len(rows))
	for _, r := range rows {
		universities = append(universities, r.University)
		subjects = append(subjects, r.SubjectName)
		teachers = append(teachers, r.FullName)
	}
	return FilterOptions{
		Universities: SortedUnique(universities),
		Subjects:     SortedUnique(subjects),
		Teachers:     SortedUnique(teachers),
	}
}

// SortedUnique trims values, drops blanks and duplicates, and sorts the rest
func SortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ScanTeacherSummary scans a row selected with TeacherSummaryColumns
func ScanTeacherSummary(row pgx.Row) (*TeacherSummary, error) {
	var t TeacherSummary
	var rating *float64
	err := row.Scan(
		&t.TeacherSubjectID,
		&t.FullName,
		&t.University,
		&t.SubjectName,
		&rating,
		&t.TotalReviews,
		&t.LastReviewDate,
		&t.LatestPositiveComment,
		&t.LatestConstructiveComment,
		&t.TopTags,
	)
	if err != nil {
		return nil, err
	}
	if rating != nil {
		t.AverageRating = *rating
	}
	if t.TopTags == nil {
		t.TopTags = []string{}
	}
	return &t, nil
}

// ScanTeacherSummaries scans every row and closes rows
func ScanTeacherSummaries(rows pgx.Rows) ([]TeacherSummary, error) {
	defer rows.Close()

	out := []TeacherSummary{}
	for rows.Next() {
		t, err := ScanTeacherSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
