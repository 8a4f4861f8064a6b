package graph

import (
	"strings"
)

// ID is the instance identifier assigned by the source file (#123).
type ID int64

// Kind tags the variant held by a Value.
type Kind uint8

// Value kinds. The set is closed: it mirrors the parameter forms of an
// ISO 10303-21 data section.
const (
	KindNull    Kind = iota // $
	KindDerived             // *
	KindInteger             // 42
	KindReal                // 1.5, 0., 1.E-05
	KindString              // 'text'
	KindEnum                // .ELEMENT.
	KindBinary              // "0FF"
	KindRef                 // #12
	KindList                // (a,b,c)
	KindTyped               // IFCLABEL('x')
)

var kindNames = [...]string{
	KindNull:    "null",
	KindDerived: "derived",
	KindInteger: "integer",
	KindReal:    "real",
	KindString:  "string",
	KindEnum:    "enum",
	KindBinary:  "binary",
	KindRef:     "ref",
	KindList:    "list",
	KindTyped:   "typed",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is one attribute value of an entity.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	// Text holds the string body with STEP escapes preserved, the enum name,
	// the binary digits, the type name of a typed value, or the raw literal of
	// a parsed real.
	Text  string
	Ref   ID
	Items []Value
}

// Null returns the unset value ($).
func Null() Value { return Value{Kind: KindNull} }

// DerivedValue returns the derived marker (*).
func DerivedValue() Value { return Value{Kind: KindDerived} }

// IntValue returns an integer value.
func IntValue(i int64) Value { return Value{Kind: KindInteger, Int: i} }

// RealValue returns a real value without a source literal.
func RealValue(f float64) Value { return Value{Kind: KindReal, Float: f} }

// StringValue returns a string value, escaping embedded quotes.
func StringValue(s string) Value {
	return Value{Kind: KindString, Text: strings.ReplaceAll(s, "'", "''")}
}

// EnumValue returns an enumeration value such as ELEMENT or T.
func EnumValue(name string) Value { return Value{Kind: KindEnum, Text: name} }

// RefValue returns a reference to another entity.
func RefValue(id ID) Value { return Value{Kind: KindRef, Ref: id} }

// ListValue returns an aggregate.
func ListValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindList, Items: items}
}

// TypedValue returns a typed parameter such as IFCLENGTHMEASURE(0.5).
func TypedValue(name string, items ...Value) Value {
	return Value{Kind: KindTyped, Text: name, Items: items}
}

// IsNull reports whether the value is unset.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Number returns the numeric content of an integer, real, or typed numeric value.
func (v Value) Number() (float64, bool) {
	switch v.Kind {
	case KindReal:
		return v.Float, true
	case KindInteger:
		return float64(v.Int), true
	case KindTyped:
		if len(v.Items) == 1 {
			return v.Items[0].Number()
		}
	}
	return 0, false
}

// Str returns the unescaped string content. Non-string values yield "".
func (v Value) Str() string {
	switch v.Kind {
	case KindString:
		return strings.ReplaceAll(v.Text, "''", "'")
	case KindTyped:
		if len(v.Items) == 1 {
			return v.Items[0].Str()
		}
	}
	return ""
}

// Bool interprets .T./.F. enumerations. Anything else is false.
func (v Value) Bool() bool {
	return v.Kind == KindEnum && v.Text == "T"
}

// Numbers returns the numeric items of a list value.
func (v Value) Numbers() ([]float64, bool) {
	if v.Kind != KindList {
		return nil, false
	}
	out := make([]float64, len(v.Items))
	for i, it := range v.Items {
		f, ok := it.Number()
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

// RefList returns the referenced IDs of a list value.
func (v Value) RefList() []ID {
	if v.Kind != KindList {
		return nil
	}
	out := make([]ID, 0, len(v.Items))
	for _, it := range v.Items {
		if it.Kind == KindRef {
			out = append(out, it.Ref)
		}
	}
	return out
}

// appendRefs collects every reference nested in v, in attribute order.
func (v Value) appendRefs(dst []ID) []ID {
	switch v.Kind {
	case KindRef:
		dst = append(dst, v.Ref)
	case KindList, KindTyped:
		for _, it := range v.Items {
			dst = it.appendRefs(dst)
		}
	}
	return dst
}

// rewrite replaces references in place. fn returns the new target and false
// when the reference must be left alone.
func (v *Value) rewrite(fn func(ID) (ID, bool)) {
	switch v.Kind {
	case KindRef:
		if to, ok := fn(v.Ref); ok {
			v.Ref = to
		}
	case KindList, KindTyped:
		for i := range v.Items {
			v.Items[i].rewrite(fn)
		}
	}
}

// clone deep-copies nested aggregates.
func (v Value) clone() Value {
	if len(v.Items) == 0 {
		if v.Items != nil {
			v.Items = []Value{}
		}
		return v
	}
	items := make([]Value, len(v.Items))
	for i, it := range v.Items {
		items[i] = it.clone()
	}
	v.Items = items
	return v
}
