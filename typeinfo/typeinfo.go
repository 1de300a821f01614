// Package typeinfo is the Type Introspector: it reduces a Go reflect.Type
// (optionally together with the struct tag of the field it annotates) to
// the canonical Descriptor that the rest of the resolver pipeline
// classifies parameters and responses from.
package typeinfo

import (
	"reflect"
	"strings"
)

// StructuredKind classifies a keyed aggregate type.
type StructuredKind int

const (
	StructuredNone StructuredKind = iota
	TaggedStruct                  // a Go struct with at least one recognized field tag
	PlainRecord                   // a Go struct with no recognized tags, or map[string]T
	UntypedMapping                // map[string]any / map[string]interface{}
)

// Meta is one ordered metadata entry carried by a field's struct tag.
// Entries preserve left-to-right source order so that, per the kind
// they name, a later entry overrides an earlier one of the same Kind.
type Meta struct {
	Kind  string // "alias" | "decoder" | "validate" | "default" | ...
	Value string
}

// Descriptor is the canonical, unwrapped description of a declared type.
type Descriptor struct {
	Go       reflect.Type // base type with pointer/optionality unwrapped
	Metadata []Meta

	Nullable bool

	IsSequence bool
	ItemType   reflect.Type

	IsUnion  bool
	Variants []reflect.Type

	IsStructured   bool
	StructuredKind StructuredKind
}

// Override returns the last (highest-priority) metadata value of kind,
// implementing "later annotations override earlier ones for decoder
// selection and alias" (§4.1 step 1).
func (d *Descriptor) Override(kind string) (string, bool) {
	val, ok := "", false
	for _, m := range d.Metadata {
		if m.Kind == kind {
			val, ok = m.Value, true
		}
	}
	return val, ok
}

var (
	unionIface = reflect.TypeOf((*unionMarker)(nil)).Elem()
	byteSlice  = reflect.TypeOf([]byte(nil))
	timeType   = reflect.TypeOf(timeSentinel{})
)

// unionMarker is implemented by the generic UnionN wrapper types in
// union.go, letting Introspect recognize a declared union without a
// runtime type switch over every arity.
type unionMarker interface {
	unionVariants() []reflect.Type
}

type timeSentinel struct{}

// Introspect reduces t to its canonical Descriptor (§4.1). Struct-tag
// derived metadata is not available from a bare reflect.Type; use
// IntrospectField when t is a struct field to also populate Metadata.
func Introspect(t reflect.Type) (*Descriptor, error) {
	d := &Descriptor{}

	for t.Kind() == reflect.Ptr {
		d.Nullable = true
		t = t.Elem()
	}

	// A pointer field inside a union wrapper (see UnionN in union.go)
	// already reduces "T or null" to Nullable via the unwrap loop above;
	// a genuine union carries two or more non-null variant types.
	if t.Implements(unionIface) || reflect.PointerTo(t).Implements(unionIface) {
		marker := reflect.New(t).Elem().Interface().(unionMarker)
		d.IsUnion = true
		d.Variants = marker.unionVariants()
		d.Go = t
		return d, nil
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t != byteSlice {
			d.IsSequence = true
			d.ItemType = t.Elem()
		}
	case reflect.Struct:
		if t != timeType && !implementsStringer(t) {
			d.IsStructured = true
			d.StructuredKind = classifyStruct(t)
		}
	case reflect.Map:
		d.IsStructured = true
		if t.Elem().Kind() == reflect.Interface {
			d.StructuredKind = UntypedMapping
		} else {
			d.StructuredKind = PlainRecord
		}
	}

	d.Go = t
	return d, nil
}

func implementsStringer(t reflect.Type) bool {
	// time.Time and similar marshaling-only scalars behave like scalars
	// for binding purposes; detect the common case without importing
	// "time" directly so callers can supply their own time-like types.
	return t.PkgPath() == "time" && t.Name() == "Time"
}

func classifyStruct(t reflect.Type) StructuredKind {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if _, ok := f.Tag.Lookup("path"); ok {
			return TaggedStruct
		}
		if _, ok := f.Tag.Lookup("query"); ok {
			return TaggedStruct
		}
		if _, ok := f.Tag.Lookup("header"); ok {
			return TaggedStruct
		}
		if _, ok := f.Tag.Lookup("cookie"); ok {
			return TaggedStruct
		}
		if _, ok := f.Tag.Lookup("json"); ok {
			return TaggedStruct
		}
	}
	return PlainRecord
}

// IntrospectField introspects f.Type and additionally parses f.Tag for
// the recognized metadata keys (alias, decoder, validate, default),
// preserving their left-to-right order in the raw tag string so that
// Override resolves the last occurrence of a repeated kind. Go's
// reflect.StructTag doesn't allow a key twice in practice, but a field's
// embedded type chain can each contribute a tag for the same concern;
// callers building param-pack expansions append the outer struct's tag
// entries after the inner one's so the outer (closer to the call site)
// wins, matching "later annotations override earlier ones".
func IntrospectField(f reflect.StructField) (*Descriptor, error) {
	d, err := Introspect(f.Type)
	if err != nil {
		return nil, err
	}
	d.Metadata = append(d.Metadata, parseTagOrder(string(f.Tag))...)
	return d, nil
}

// parseTagOrder scans a raw struct tag left to right, yielding one Meta
// per recognized key in source order (unlike StructTag.Get, which loses
// ordering across distinct keys).
func parseTagOrder(tag string) []Meta {
	var out []Meta
	for tag != "" {
		i := 0
		for i < len(tag) && tag[i] == ' ' {
			i++
		}
		tag = tag[i:]
		if tag == "" {
			break
		}
		i = 0
		for i < len(tag) && tag[i] > ' ' && tag[i] != ':' && tag[i] != '"' {
			i++
		}
		if i == 0 || i+1 >= len(tag) || tag[i] != ':' || tag[i+1] != '"' {
			break
		}
		name := tag[:i]
		tag = tag[i+1:]
		i = 1
		for i < len(tag) && tag[i] != '"' {
			if tag[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(tag) {
			break
		}
		qvalue := tag[:i+1]
		tag = tag[i+1:]
		value := strings.Trim(qvalue, `"`)
		if isRecognizedMetaKey(name) {
			out = append(out, Meta{Kind: name, Value: value})
		}
	}
	return out
}

func isRecognizedMetaKey(name string) bool {
	switch name {
	case "alias", "decoder", "validate", "default":
		return true
	default:
		return false
	}
}
