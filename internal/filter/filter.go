// Package filter builds listing predicates that can be evaluated in memory or
// rendered into a SQL WHERE clause, so both store implementations apply the
// same rules.
package filter

import (
	"fmt"
	"strings"
)

// Args accumulates positional query arguments.
type Args struct {
	values []any
}

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

func (a *Args) Values() []any {
	return a.values
}

// Predicate is a condition over records of type T.
type Predicate[T any] struct {
	match func(T) bool
	sql   func(*Args) string
}

func New[T any](match func(T) bool, sql func(*Args) string) Predicate[T] {
	return Predicate[T]{match: match, sql: sql}
}

// Match evaluates the predicate; the zero Predicate matches everything.
func (p Predicate[T]) Match(v T) bool {
	if p.match == nil {
		return true
	}
	return p.match(v)
}

// SQL renders the predicate, registering its arguments on a.
func (p Predicate[T]) SQL(a *Args) string {
	if p.sql == nil {
		return "TRUE"
	}
	return p.sql(a)
}

// And combines predicates; with no arguments it matches everything.
func And[T any](ps ...Predicate[T]) Predicate[T] {
	return Predicate[T]{
		match: func(v T) bool {
			for _, p := range ps {
				if !p.Match(v) {
					return false
				}
			}
			return true
		},
		sql: func(a *Args) string {
			if len(ps) == 0 {
				return "TRUE"
			}
			parts := make([]string, 0, len(ps))
			for _, p := range ps {
				parts = append(parts, "("+p.SQL(a)+")")
			}
			return strings.Join(parts, " AND ")
		},
	}
}

func containsFold(s, term string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(term))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern turns a search term into an ILIKE substring pattern.
func LikePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
