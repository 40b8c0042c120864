package catalog

import (
	"fmt"
	"regexp"
)

// FieldType is the declared type of a catalog field.
type FieldType string

const (
	TypeText      FieldType = "text"
	TypeInteger   FieldType = "integer"
	TypeReal      FieldType = "real"
	TypeTimestamp FieldType = "timestamp"
)

// ParseFieldType converts a configured type name to a FieldType.
func ParseFieldType(name string) (FieldType, error) {
	switch FieldType(name) {
	case TypeText, TypeInteger, TypeReal, TypeTimestamp:
		return FieldType(name), nil
	}
	return "", fmt.Errorf("unsupported field type %q", name)
}

// FieldDef declares one catalog field: its name, type, nullability, and the
// default applied when a value is not supplied.
type FieldDef struct {
	Name     string
	Type     FieldType
	Nullable bool
	Default  Value
	Extra    bool // true for configured extra fields, false for core fields
}

// Core field names. The (evid, ver) pair is the record key; the rest are the
// geophysical fields compared during reconciliation.
const (
	FieldEvid      = "evid"
	FieldVer       = "ver"
	FieldTime      = "time"
	FieldLat       = "lat"
	FieldLon       = "lon"
	FieldDepth     = "depth"
	FieldMag       = "mag"
	FieldMagType   = "mag_type"
	FieldEventType = "event_type"
)

// coreFields is the fixed attribute set of every event version record,
// in storage column order.
var coreFields = []FieldDef{
	{Name: FieldEvid, Type: TypeText},
	{Name: FieldVer, Type: TypeInteger},
	{Name: FieldTime, Type: TypeTimestamp},
	{Name: FieldLat, Type: TypeReal},
	{Name: FieldLon, Type: TypeReal},
	{Name: FieldDepth, Type: TypeReal},
	{Name: FieldMag, Type: TypeReal, Nullable: true},
	{Name: FieldMagType, Type: TypeText, Nullable: true},
	{Name: FieldEventType, Type: TypeText, Nullable: true},
}

// ComparedFields are the core fields checked for changes by reconciliation.
var ComparedFields = []string{
	FieldTime, FieldLat, FieldLon, FieldDepth, FieldMag, FieldMagType, FieldEventType,
}

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Schema is the full field set of a catalog: the fixed core fields plus the
// extra fields declared once at catalog initialization. Immutable after
// construction.
type Schema struct {
	fields []FieldDef
	byName map[string]FieldDef
}

// NewSchema builds a schema from the configured extra fields.
// Extra fields are always nullable; their declared default may be Null.
func NewSchema(extras []FieldDef) (*Schema, error) {
	s := &Schema{
		fields: make([]FieldDef, 0, len(coreFields)+len(extras)),
		byName: make(map[string]FieldDef, len(coreFields)+len(extras)),
	}
	for _, f := range coreFields {
		s.fields = append(s.fields, f)
		s.byName[f.Name] = f
	}
	for _, f := range extras {
		if !fieldNamePattern.MatchString(f.Name) {
			return nil, fmt.Errorf("invalid extra field name %q", f.Name)
		}
		if _, exists := s.byName[f.Name]; exists {
			return nil, fmt.Errorf("extra field %q collides with an existing field", f.Name)
		}
		switch f.Type {
		case TypeText, TypeInteger, TypeReal, TypeTimestamp:
		default:
			return nil, fmt.Errorf("extra field %q has unsupported type %q", f.Name, f.Type)
		}
		f.Nullable = true
		f.Extra = true
		if f.Default == nil {
			f.Default = Null{}
		}
		s.fields = append(s.fields, f)
		s.byName[f.Name] = f
	}
	return s, nil
}

// Field looks up a field definition by name.
func (s *Schema) Field(name string) (FieldDef, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Fields returns all field definitions in storage column order:
// core fields first, then extras in declaration order.
func (s *Schema) Fields() []FieldDef {
	out := make([]FieldDef, len(s.fields))
	copy(out, s.fields)
	return out
}

// ExtraFields returns only the configured extra field definitions.
func (s *Schema) ExtraFields() []FieldDef {
	var out []FieldDef
	for _, f := range s.fields {
		if f.Extra {
			out = append(out, f)
		}
	}
	return out
}

// FieldNames returns all field names in storage column order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}
