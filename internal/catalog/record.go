package catalog

import (
	"encoding/json"
	"time"
)

// RecordID identifies one stored event version.
type RecordID struct {
	Evid string
	Ver  int64
}

// Record is one stored event version: the (evid, ver) key plus every other
// field value keyed by name. Values always hold the field's declared type
// or Null.
type Record struct {
	Evid   string
	Ver    int64
	Values map[string]Value
}

// ID returns the record's (evid, ver) key.
func (r Record) ID() RecordID {
	return RecordID{Evid: r.Evid, Ver: r.Ver}
}

// Value returns the named field value, treating the key fields uniformly
// with the rest. Missing fields read as Null.
func (r Record) Value(name string) Value {
	switch name {
	case FieldEvid:
		return String(r.Evid)
	case FieldVer:
		return Int(r.Ver)
	}
	if v, ok := r.Values[name]; ok && v != nil {
		return v
	}
	return Null{}
}

// Time returns the record's origin time, or the zero time if unset.
func (r Record) Time() time.Time {
	if t, ok := r.Values[FieldTime].(Time); ok {
		return time.Time(t)
	}
	return time.Time{}
}

// MarshalJSON renders the record as a flat object with canonical external
// value formatting (timestamps in TimeLayout, nulls as JSON null).
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Values)+2)
	out[FieldEvid] = r.Evid
	out[FieldVer] = r.Ver
	for name, v := range r.Values {
		switch val := v.(type) {
		case nil, Null:
			out[name] = nil
		case String:
			out[name] = string(val)
		case Int:
			out[name] = int64(val)
		case Float:
			out[name] = float64(val)
		case Time:
			out[name] = time.Time(val).UTC().Format(TimeLayout)
		}
	}
	return json.Marshal(out)
}

// Event is a normalized incoming event as produced by acquisition
// collaborators. Pointer fields distinguish "absent" from zero values so
// that presence of required core fields can be validated.
type Event struct {
	Evid      string            `json:"evid"`
	Time      *time.Time        `json:"time"`
	Lat       *float64          `json:"lat"`
	Lon       *float64          `json:"lon"`
	Depth     *float64          `json:"depth"`
	Mag       *float64          `json:"mag"`
	MagType   *string           `json:"mag_type"`
	EventType *string           `json:"event_type"`
	Extras    map[string]string `json:"extras,omitempty"`
}

// CoreValues converts the event's core fields to typed catalog values.
// Returns a SCHEMA error naming the first missing required field.
func (e Event) CoreValues() (map[string]Value, error) {
	required := []struct {
		name    string
		present bool
	}{
		{FieldTime, e.Time != nil},
		{FieldLat, e.Lat != nil},
		{FieldLon, e.Lon != nil},
		{FieldDepth, e.Depth != nil},
	}
	for _, f := range required {
		if !f.present {
			return nil, SchemaError("missing required core field", f.name)
		}
	}
	vals := map[string]Value{
		FieldTime:  NewTime(*e.Time),
		FieldLat:   Float(*e.Lat),
		FieldLon:   Float(*e.Lon),
		FieldDepth: Float(*e.Depth),
	}
	vals[FieldMag] = Null{}
	if e.Mag != nil {
		vals[FieldMag] = Float(*e.Mag)
	}
	vals[FieldMagType] = Null{}
	if e.MagType != nil {
		vals[FieldMagType] = NewString(*e.MagType)
	}
	vals[FieldEventType] = Null{}
	if e.EventType != nil {
		vals[FieldEventType] = NewString(*e.EventType)
	}
	return vals, nil
}

// ExtraValues coerces the event's extra-field literals against the schema.
// Unknown extras fail with a FIELD error, bad literals with a TYPE error.
func (e Event) ExtraValues(schema *Schema) (map[string]Value, error) {
	if len(e.Extras) == 0 {
		return nil, nil
	}
	vals := make(map[string]Value, len(e.Extras))
	for name, literal := range e.Extras {
		def, ok := schema.Field(name)
		if !ok || !def.Extra {
			return nil, FieldError(name)
		}
		v, err := Coerce(def.Type, literal)
		if err != nil {
			return nil, TypeError(err.Error(), name, "=", literal)
		}
		vals[name] = v
	}
	return vals, nil
}
