package graph

import (
	"strconv"
	"strings"
)

// AppendSTEP appends the ISO 10303-21 encoding of v.
func (v Value) AppendSTEP(b []byte) []byte {
	switch v.Kind {
	case KindNull:
		return append(b, '$')
	case KindDerived:
		return append(b, '*')
	case KindInteger:
		return strconv.AppendInt(b, v.Int, 10)
	case KindReal:
		if v.Text != "" {
			return append(b, v.Text...)
		}
		return append(b, FormatReal(v.Float)...)
	case KindString:
		b = append(b, '\'')
		b = append(b, v.Text...)
		return append(b, '\'')
	case KindEnum:
		b = append(b, '.')
		b = append(b, v.Text...)
		return append(b, '.')
	case KindBinary:
		b = append(b, '"')
		b = append(b, v.Text...)
		return append(b, '"')
	case KindRef:
		b = append(b, '#')
		return strconv.AppendInt(b, int64(v.Ref), 10)
	case KindList:
		return appendParams(b, v.Items)
	case KindTyped:
		b = append(b, v.Text...)
		return appendParams(b, v.Items)
	}
	return b
}

func appendParams(b []byte, items []Value) []byte {
	b = append(b, '(')
	for i, it := range items {
		if i > 0 {
			b = append(b, ',')
		}
		b = it.AppendSTEP(b)
	}
	return append(b, ')')
}

// AppendSTEP appends the data-section record of e, without a line break.
func (e *Entity) AppendSTEP(b []byte) []byte {
	b = append(b, '#')
	b = strconv.AppendInt(b, int64(e.ID), 10)
	b = append(b, '=')
	b = append(b, e.Type...)
	b = appendParams(b, e.Attrs)
	return append(b, ';')
}

// AppendSTEP appends the header record, without a line break.
func (h Header) AppendSTEP(b []byte) []byte {
	b = append(b, h.Name...)
	b = appendParams(b, h.Params)
	return append(b, ';')
}

// EncodedSize returns the number of bytes the data section records occupy,
// one record per line.
func (g *Graph) EncodedSize() int64 {
	var n int64
	buf := make([]byte, 0, 256)
	for _, e := range g.entities {
		buf = e.AppendSTEP(buf[:0])
		n += int64(len(buf)) + 1
	}
	return n
}

// FormatReal renders f as a STEP real literal. STEP requires a decimal point,
// so 1 becomes "1." and 1e-05 becomes "1.E-05".
func FormatReal(f float64) string {
	s := strconv.FormatFloat(f, 'G', -1, 64)
	if strings.ContainsAny(s, "NI") {
		// NaN and Inf have no STEP form.
		return "0."
	}
	mant, exp, hasExp := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += "."
	}
	if !hasExp {
		return mant
	}
	sign := "+"
	if exp[0] == '-' || exp[0] == '+' {
		sign, exp = exp[:1], exp[1:]
	}
	if len(exp) < 2 {
		exp = "0" + exp
	}
	return mant + "E" + sign + exp
}
