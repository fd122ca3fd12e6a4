package supabase

import "strings"

// CountExact asks PostgREST to report the total row count
const CountExact = "exact"

// IlikeAny builds an or=(...) filter body matching rows where any column
// contains term, ignoring case. It returns "" for a blank term.
func IlikeAny(columns []string, term string) string {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return ""
	}
	pattern := quote("*" + escapeLike(term) + "*")
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = col + ".ilike." + pattern
	}
	return strings.Join(parts, ",")
}

// quote wraps a filter value in double quotes so reserved characters survive
func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// escapeLike neutralizes LIKE wildcards typed by the user
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, ``)
	return r.Replace(term)
}
