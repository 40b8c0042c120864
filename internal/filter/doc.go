// Package filter parses and evaluates boolean selection expressions over
// catalog records.
//
// The grammar is deliberately small: one or more `KEY OP VALUE` clauses
// joined by case-insensitive AND / OR, evaluated strictly left to right
// with no operator precedence and no parentheses. `A OR B AND C` means
// `(A OR B) AND C`.
//
// Parsing is schema-aware: keys must name a declared field and values are
// coerced to the field's declared type up front, so evaluation is pure and
// cannot fail.
package filter
