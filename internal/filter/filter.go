package filter

import (
	"strings"

	"github.com/quaketools/evcat/internal/catalog"
)

// Op is a clause comparison operator.
type Op string

const (
	OpEq Op = "="
	OpLt Op = "<"
	OpGt Op = ">"
	OpLe Op = "<="
	OpGe Op = ">="
	OpNe Op = "!="
)

// Connector joins two clauses.
type Connector int

const (
	And Connector = iota
	Or
)

func (c Connector) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// Clause is one `KEY OP VALUE` comparison with the value already coerced to
// the field's declared type. Literal keeps the raw text for diagnostics.
type Clause struct {
	Field   catalog.FieldDef
	Op      Op
	Value   catalog.Value
	Literal string
}

// Expression is a parsed selection predicate: clauses joined pairwise by
// connectors, evaluated left to right. Connectors[i] joins the accumulated
// result of Clauses[0..i] with Clauses[i+1].
type Expression struct {
	Clauses    []Clause
	Connectors []Connector
}

// Evaluate applies the expression to a record. Pure and side-effect free.
//
// A clause whose field reads NULL never matches, regardless of operator;
// this includes !=, so that filtering behaves identically whether a clause
// is pushed into the store or applied here.
func (e *Expression) Evaluate(r catalog.Record) bool {
	if len(e.Clauses) == 0 {
		return true
	}
	acc := e.Clauses[0].matches(r)
	for i, conn := range e.Connectors {
		next := e.Clauses[i+1].matches(r)
		if conn == And {
			acc = acc && next
		} else {
			acc = acc || next
		}
	}
	return acc
}

// HasOr reports whether the expression contains at least one OR connector.
func (e *Expression) HasOr() bool {
	for _, c := range e.Connectors {
		if c == Or {
			return true
		}
	}
	return false
}

func (c Clause) matches(r catalog.Record) bool {
	v := r.Value(c.Field.Name)
	if catalog.IsNull(v) || catalog.IsNull(c.Value) {
		return false
	}
	cmp, err := catalog.Compare(v, c.Value)
	if err != nil {
		return false
	}
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpGt:
		return cmp > 0
	case OpLe:
		return cmp <= 0
	case OpGe:
		return cmp >= 0
	default:
		return false
	}
}

// String renders the expression in its textual grammar form.
func (e *Expression) String() string {
	var b strings.Builder
	for i, c := range e.Clauses {
		if i > 0 {
			b.WriteByte(' ')
			b.WriteString(e.Connectors[i-1].String())
			b.WriteByte(' ')
		}
		b.WriteString(c.Field.Name)
		b.WriteString(string(c.Op))
		b.WriteString(c.Literal)
	}
	return b.String()
}
