// Package filtersql translates parsed filter expressions into the catalog
// store's native predicate form: a parameterized SQL WHERE fragment plus an
// optional residual predicate applied by post-filtering.
//
// Translation is best effort. Clauses on timestamp fields are never pushed
// down: timestamps live in the store as text, and comparing them in Go after
// parsing stays correct even for rows written with a different textual
// precision. When the expression mixes residual clauses with OR connectors,
// partial pushdown would change its meaning, so the whole expression falls
// back to post-filtering.
package filtersql

import (
	"fmt"
	"time"

	"github.com/quaketools/evcat/internal/catalog"
	"github.com/quaketools/evcat/internal/filter"
	"github.com/quaketools/evcat/internal/store"
)

// Compile converts an expression into a store query.
// CRITICAL: values are always parameterized, never interpolated.
func Compile(e *filter.Expression) *store.Query {
	if e == nil || len(e.Clauses) == 0 {
		return &store.Query{}
	}

	allPushable := true
	for _, c := range e.Clauses {
		if !canPush(c) {
			allPushable = false
			break
		}
	}

	if allPushable {
		sql, args := compileAll(e)
		return &store.Query{Where: sql, Args: args}
	}

	if !e.HasOr() {
		// Pure conjunction: pushing down a subset of clauses yields a
		// superset of the matching rows, and the residual Evaluate pass
		// restores exact semantics.
		sql, args := compileConjunction(e)
		return &store.Query{Where: sql, Args: args, Post: e.Evaluate}
	}

	return &store.Query{Post: e.Evaluate}
}

// compileAll renders the whole expression, parenthesized to reproduce the
// grammar's left-to-right grouping: A OR B AND C becomes ((A OR B) AND C).
func compileAll(e *filter.Expression) (string, []any) {
	sql, args := clauseSQL(e.Clauses[0])
	for i, conn := range e.Connectors {
		nextSQL, nextArgs := clauseSQL(e.Clauses[i+1])
		sql = fmt.Sprintf("(%s %s %s)", sql, conn, nextSQL)
		args = append(args, nextArgs...)
	}
	return sql, args
}

// compileConjunction renders only the pushable clauses of an AND-only
// expression.
func compileConjunction(e *filter.Expression) (string, []any) {
	var sql string
	var args []any
	for _, c := range e.Clauses {
		if !canPush(c) {
			continue
		}
		cSQL, cArgs := clauseSQL(c)
		if sql == "" {
			sql = cSQL
		} else {
			sql += " AND " + cSQL
		}
		args = append(args, cArgs...)
	}
	return sql, args
}

func canPush(c filter.Clause) bool {
	return c.Field.Type != catalog.TypeTimestamp
}

func clauseSQL(c filter.Clause) (string, []any) {
	return fmt.Sprintf("%s %s ?", c.Field.Name, c.Op), []any{toParam(c.Value)}
}

// toParam converts a catalog value to its SQL parameter form.
func toParam(v catalog.Value) any {
	switch val := v.(type) {
	case catalog.String:
		return string(val)
	case catalog.Int:
		return int64(val)
	case catalog.Float:
		return float64(val)
	case catalog.Time:
		return time.Time(val).UTC().Format(catalog.TimeLayout)
	default:
		return nil
	}
}
