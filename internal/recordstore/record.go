package recordstore

import "errors"

var (
	ErrTableNotFound  = errors.New("table not found")
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownField   = errors.New("unknown field")
	ErrFieldType      = errors.New("field type mismatch")
)

// FieldType is the declared type of a field.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	return t == FieldText || t == FieldNumber
}

// Accepts reports whether v may be stored in a field of type t.
func (t FieldType) Accepts(v Value) bool {
	switch v.Kind() {
	case KindNull:
		return true
	case KindNumber:
		return t == FieldNumber
	default:
		return t == FieldText
	}
}

// Field is a named, typed column of a table.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Record is a row of a table. Fields that were never written read as null.
type Record struct {
	ID      string
	TableID string
	fields  map[string]Value
}

// NewRecord builds a Record. The fields map is copied.
func NewRecord(id, tableID string, fields map[string]Value) *Record {
	r := &Record{ID: id, TableID: tableID, fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		r.fields[k] = v
	}
	return r
}

// Value returns the cell value of field name.
func (r *Record) Value(name string) Value {
	return r.fields[name]
}

// String returns the cell value of field name rendered as text.
func (r *Record) String(name string) string {
	return r.fields[name].String()
}

// Fields returns a copy of all written cell values.
func (r *Record) Fields() map[string]Value {
	out := make(map[string]Value, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}
