// Package models defines the server-side records persisted in a user store
// and the rules for turning client input into them.
package models

import (
	"regexp"
	"strings"
)

// Kind is the storage type of a WBO field.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
)

// Field describes one WBO column. MaxLen bounds string fields, 0 means
// unbounded.
type Field struct {
	Name   string
	Kind   Kind
	MaxLen int
}

// FieldSet is an ordered, read-only list of fields.
type FieldSet struct {
	fields []Field
}

func newFieldSet(fields ...Field) *FieldSet {
	return &FieldSet{fields: fields}
}

// Lookup finds a field by name.
func (s *FieldSet) Lookup(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns a fresh slice of the field names in order.
func (s *FieldSet) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Columns renders the names as a SELECT column list.
func (s *FieldSet) Columns() string {
	return strings.Join(s.Names(), ", ")
}

const (
	MaxIDLength      = 64
	MaxPayloadLength = 256 * 1024
)

// Fields is every column of a stored WBO.
var Fields = newFieldSet(
	Field{Name: "id", Kind: KindString, MaxLen: MaxIDLength},
	Field{Name: "modified", Kind: KindFloat},
	Field{Name: "sortindex", Kind: KindInt},
	Field{Name: "payload", Kind: KindString, MaxLen: MaxPayloadLength},
	Field{Name: "payload_size", Kind: KindInt},
	Field{Name: "parentid", Kind: KindString, MaxLen: MaxIDLength},
	Field{Name: "predecessorid", Kind: KindString, MaxLen: MaxIDLength},
	Field{Name: "ttl", Kind: KindInt},
)

// FullFields is what a full read returns, in order.
var FullFields = newFieldSet(
	Field{Name: "id", Kind: KindString, MaxLen: MaxIDLength},
	Field{Name: "modified", Kind: KindFloat},
	Field{Name: "sortindex", Kind: KindInt},
	Field{Name: "payload", Kind: KindString, MaxLen: MaxPayloadLength},
	Field{Name: "parentid", Kind: KindString, MaxLen: MaxIDLength},
	Field{Name: "predecessorid", Kind: KindString, MaxLen: MaxIDLength},
	Field{Name: "ttl", Kind: KindInt},
)

var collectionName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,32}$`)

// ValidCollectionName reports whether name may be used as a collection.
func ValidCollectionName(name string) bool {
	return collectionName.MatchString(name)
}
