package filter

import (
	"strings"
	"unicode"

	"github.com/quaketools/evcat/internal/catalog"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenOp
	tokenValue
)

type token struct {
	kind tokenKind
	text string
	pos  int // byte offset in the source text
}

// Parse turns selection expression text into an evaluable Expression.
//
// Errors: SYNTAX (offending token and position) for malformed input, FIELD
// for keys not in the schema, TYPE for literals that do not coerce to the
// key's declared type.
func Parse(text string, schema *catalog.Schema) (*Expression, error) {
	lx := &lexer{src: text}
	expr := &Expression{}
	for {
		key, err := lx.next(tokenIdent)
		if err != nil {
			return nil, err
		}
		if key.kind == tokenEOF {
			// Empty input, or a dangling connector with no clause after it.
			return nil, catalog.SyntaxError("unexpected end of expression", "", key.pos)
		}
		def, ok := schema.Field(key.text)
		if !ok {
			return nil, catalog.FieldError(key.text)
		}

		op, err := lx.next(tokenOp)
		if err != nil {
			return nil, err
		}

		val, err := lx.next(tokenValue)
		if err != nil {
			return nil, err
		}
		coerced, cerr := catalog.Coerce(def.Type, val.text)
		if cerr != nil {
			return nil, catalog.TypeError(cerr.Error(), def.Name, op.text, val.text)
		}

		expr.Clauses = append(expr.Clauses, Clause{
			Field:   def,
			Op:      Op(op.text),
			Value:   coerced,
			Literal: val.text,
		})

		conn, err := lx.next(tokenIdent)
		if err != nil {
			return nil, err
		}
		if conn.kind == tokenEOF {
			return expr, nil
		}
		switch strings.ToUpper(conn.text) {
		case "AND":
			expr.Connectors = append(expr.Connectors, And)
		case "OR":
			expr.Connectors = append(expr.Connectors, Or)
		default:
			return nil, catalog.SyntaxError("expected AND or OR", conn.text, conn.pos)
		}
	}
}

type lexer struct {
	src string
	pos int
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) && unicode.IsSpace(rune(lx.src[lx.pos])) {
		lx.pos++
	}
}

// next scans one token of the expected kind. A connector position passes
// tokenIdent and may legitimately hit EOF; other positions treat EOF as a
// syntax error.
func (lx *lexer) next(want tokenKind) (token, error) {
	lx.skipSpace()
	if lx.pos >= len(lx.src) {
		if want == tokenIdent {
			return token{kind: tokenEOF, pos: lx.pos}, nil
		}
		return token{}, catalog.SyntaxError("unexpected end of expression", "", lx.pos)
	}

	start := lx.pos
	switch want {
	case tokenIdent:
		if !isIdentStart(lx.src[lx.pos]) {
			return token{}, catalog.SyntaxError("expected field name", lx.peekWord(), start)
		}
		for lx.pos < len(lx.src) && isIdentByte(lx.src[lx.pos]) {
			lx.pos++
		}
		return token{kind: tokenIdent, text: lx.src[start:lx.pos], pos: start}, nil

	case tokenOp:
		for lx.pos < len(lx.src) && isOpByte(lx.src[lx.pos]) {
			lx.pos++
		}
		op := lx.src[start:lx.pos]
		switch Op(op) {
		case OpEq, OpLt, OpGt, OpLe, OpGe, OpNe:
			return token{kind: tokenOp, text: op, pos: start}, nil
		}
		if op == "" {
			op = lx.peekWord()
		}
		return token{}, catalog.SyntaxError("expected comparison operator", op, start)

	case tokenValue:
		if q := lx.src[lx.pos]; q == '\'' || q == '"' {
			lx.pos++
			vstart := lx.pos
			for lx.pos < len(lx.src) && lx.src[lx.pos] != q {
				lx.pos++
			}
			if lx.pos >= len(lx.src) {
				return token{}, catalog.SyntaxError("unterminated quoted value", lx.src[start:], start)
			}
			text := lx.src[vstart:lx.pos]
			lx.pos++ // closing quote
			return token{kind: tokenValue, text: text, pos: start}, nil
		}
		for lx.pos < len(lx.src) && !unicode.IsSpace(rune(lx.src[lx.pos])) {
			lx.pos++
		}
		return token{kind: tokenValue, text: lx.src[start:lx.pos], pos: start}, nil
	}
	return token{}, catalog.SyntaxError("internal: unknown token kind", "", start)
}

// peekWord returns the run of non-space bytes at the current position,
// for error messages only.
func (lx *lexer) peekWord() string {
	end := lx.pos
	for end < len(lx.src) && !unicode.IsSpace(rune(lx.src[end])) {
		end++
	}
	return lx.src[lx.pos:end]
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentByte(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isOpByte(b byte) bool {
	return b == '<' || b == '>' || b == '=' || b == '!'
}
