package tenancy

import "strconv"

// AppendScopeSQL extends a WHERE clause under construction with the tenant
// predicate for scope. It returns the grown query and args plus ok=false when
// the scope is ScopeDeny, in which case the caller must return an empty
// result without running the query at all.
//
// The column is the fully qualified tenant column, e.g. "a.barangay_id".
// Global rows (NULL tenant) stay visible inside a barangay scope; they are
// readable by every tenant even though only super admins may write them.
func AppendScopeSQL(query string, args []any, scope Scope, column string) (string, []any, bool) {
	switch scope.Kind {
	case ScopeAll:
		return query, args, true
	case ScopeBarangay:
		n := strconv.Itoa(len(args) + 1)
		query += " AND (" + column + " = $" + n + " OR " + column + " IS NULL)"
		args = append(args, scope.BarangayID)
		return query, args, true
	default:
		return query, args, false
	}
}

// Visible reports whether a record with the given stored tenant id is
// readable under scope. Mirrors AppendScopeSQL for in-memory collections.
func (s Scope) Visible(barangayID *int64) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeBarangay:
		return barangayID == nil || *barangayID == s.BarangayID
	default:
		return false
	}
}
