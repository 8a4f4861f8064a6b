// Package encoding provides shared text escaping utilities for output
// formats.
package encoding

import (
	"strings"
	"unicode"
)

// OBJName makes s usable as an OBJ group or material name.
// Whitespace and control characters become underscores.
func OBJName(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, s)
}

// FileName makes s usable as a file name on common file systems.
// Path separators and reserved characters become underscores.
func FileName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '$':
			return '_'
		}
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}

// SingleLine replaces line breaks with spaces so s fits in a one-line
// comment.
func SingleLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}
