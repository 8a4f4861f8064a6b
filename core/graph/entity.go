package graph

// Entity is a single instance of the data section.
type Entity struct {
	ID    ID
	Type  string // upper-case IFC class name, e.g. IFCWALL
	Attrs []Value
}

// NewEntity creates an entity.
func NewEntity(id ID, typ string, attrs ...Value) *Entity {
	return &Entity{ID: id, Type: typ, Attrs: attrs}
}

// Attr returns the attribute at index i, or a null value when out of range.
func (e *Entity) Attr(i int) Value {
	if i < 0 || i >= len(e.Attrs) {
		return Null()
	}
	return e.Attrs[i]
}

// RefAt returns the reference held by attribute i.
func (e *Entity) RefAt(i int) (ID, bool) {
	v := e.Attr(i)
	if v.Kind != KindRef {
		return 0, false
	}
	return v.Ref, true
}

// Refs returns the forward references of the entity in attribute order.
// Repeated references are kept.
func (e *Entity) Refs() []ID {
	var out []ID
	for _, a := range e.Attrs {
		out = a.appendRefs(out)
	}
	return out
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	attrs := make([]Value, len(e.Attrs))
	for i, a := range e.Attrs {
		attrs[i] = a.clone()
	}
	return &Entity{ID: e.ID, Type: e.Type, Attrs: attrs}
}

// GlobalID returns the IfcGloballyUniqueId carried as first attribute by
// IfcRoot subtypes.
func (e *Entity) GlobalID() (string, bool) {
	v := e.Attr(0)
	if v.Kind != KindString || !isGlobalID(v.Text) {
		return "", false
	}
	return v.Text, true
}

func isGlobalID(s string) bool {
	if len(s) != 22 {
		return false
	}
	// The first character only encodes two bits.
	if s[0] < '0' || s[0] > '3' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '_', c == '$':
		default:
			return false
		}
	}
	return true
}

func (e *Entity) rewrite(fn func(ID) (ID, bool)) {
	for i := range e.Attrs {
		e.Attrs[i].rewrite(fn)
	}
}
