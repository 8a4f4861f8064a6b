// Package step reads and writes IFC models in the ISO 10303-21 clear-text
// encoding ("STEP physical file").
package step

import (
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/ifcslim/core/errors"
	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// stepFile is the whole exchange structure.
type stepFile struct {
	Header []*stepRecord   `parser:"'ISO-10303-21' ';' 'HEADER' ';' @@* 'ENDSEC' ';'"`
	Data   []*stepInstance `parser:"'DATA' ';' @@* 'ENDSEC' ';' 'END-ISO-10303-21' ';'"`
}

// stepRecord is a header entry: FILE_SCHEMA(('IFC2X3'));
type stepRecord struct {
	Name   string       `parser:"@Ident '('"`
	Params []*stepValue `parser:"( @@ ( ',' @@ )* )? ')' ';'"`
}

// stepInstance is a data entry: #12=IFCWALL(...);
type stepInstance struct {
	ID     string       `parser:"@Ref '='"`
	Type   string       `parser:"@Ident '('"`
	Params []*stepValue `parser:"( @@ ( ',' @@ )* )? ')' ';'"`
}

// stepValue is one parameter.
type stepValue struct {
	Null    bool       `parser:"  @'$'"`
	Derived bool       `parser:"| @'*'"`
	Ref     *string    `parser:"| @Ref"`
	Real    *string    `parser:"| @Real"`
	Int     *string    `parser:"| @Int"`
	Str     *string    `parser:"| @String"`
	Enum    *string    `parser:"| @Enum"`
	Binary  *string    `parser:"| @Binary"`
	List    *stepList  `parser:"| @@"`
	Typed   *stepTyped `parser:"| @@"`
}

// stepList is an aggregate: (a,b,c)
type stepList struct {
	Open  string       `parser:"@'('"`
	Items []*stepValue `parser:"( @@ ( ',' @@ )* )? ')'"`
}

// stepTyped is a typed parameter: IFCLABEL('x')
type stepTyped struct {
	Type  string       `parser:"@Ident '('"`
	Items []*stepValue `parser:"( @@ ( ',' @@ )* )? ')'"`
}

// stepLexer tokenizes the clear-text encoding. Order matters: section
// keywords must win over identifiers and reals over integers.
var stepLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `/\*[\s\S]*?\*/`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Keyword", Pattern: `(?:END-ISO-10303-21|ISO-10303-21|HEADER|DATA|ENDSEC)\b`},
	{Name: "Ref", Pattern: `#\d+`},
	{Name: "Real", Pattern: `[+-]?\d+\.\d*(?:[Ee][+-]?\d+)?`},
	{Name: "Int", Pattern: `[+-]?\d+`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Binary", Pattern: `"[0-9A-Fa-f]*"`},
	{Name: "Enum", Pattern: `\.[A-Za-z_][A-Za-z0-9_]*\.`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[=;(),$*]`},
})

// stepParser is the Participle parser for ISO 10303-21 files.
var stepParser = participle.MustBuild[stepFile](
	participle.Lexer(stepLexer),
	participle.Elide("Comment", "Whitespace"),
)

// Parse reads a STEP exchange structure and builds its entity graph.
// name is used in error messages only.
func Parse(r io.Reader, name string) (*graph.Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	return ParseBytes(name, data)
}

// ParseBytes parses an in-memory STEP exchange structure.
func ParseBytes(name string, data []byte) (*graph.Graph, error) {
	ast, err := stepParser.ParseBytes(name, data)
	if err != nil {
		pe := errors.NewParse("STEP", name, err.Error())
		pe.Err = err
		return nil, pe
	}

	g := graph.New()
	for _, rec := range ast.Header {
		params, err := convertValues(rec.Params)
		if err != nil {
			return nil, parseError(name, rec.Name, err)
		}
		g.Header = append(g.Header, graph.Header{Name: strings.ToUpper(rec.Name), Params: params})
	}

	for _, inst := range ast.Data {
		id, err := strconv.ParseInt(inst.ID[1:], 10, 64)
		if err != nil {
			return nil, parseError(name, inst.ID, err)
		}
		attrs, err := convertValues(inst.Params)
		if err != nil {
			return nil, parseError(name, inst.ID, err)
		}
		if err := g.Add(graph.NewEntity(graph.ID(id), strings.ToUpper(inst.Type), attrs...)); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func parseError(name, where string, err error) error {
	pe := errors.NewParse("STEP", name, where+": "+err.Error())
	pe.Err = err
	return pe
}

func convertValues(in []*stepValue) ([]graph.Value, error) {
	out := make([]graph.Value, len(in))
	for i, v := range in {
		cv, err := convertValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

func convertValue(v *stepValue) (graph.Value, error) {
	switch {
	case v.Null:
		return graph.Null(), nil
	case v.Derived:
		return graph.DerivedValue(), nil
	case v.Ref != nil:
		id, err := strconv.ParseInt((*v.Ref)[1:], 10, 64)
		if err != nil {
			return graph.Value{}, err
		}
		return graph.RefValue(graph.ID(id)), nil
	case v.Real != nil:
		f, err := strconv.ParseFloat(*v.Real, 64)
		if err != nil {
			return graph.Value{}, err
		}
		return graph.Value{Kind: graph.KindReal, Float: f, Text: *v.Real}, nil
	case v.Int != nil:
		i, err := strconv.ParseInt(*v.Int, 10, 64)
		if err != nil {
			return graph.Value{}, err
		}
		return graph.IntValue(i), nil
	case v.Str != nil:
		s := *v.Str
		return graph.Value{Kind: graph.KindString, Text: s[1 : len(s)-1]}, nil
	case v.Enum != nil:
		s := *v.Enum
		return graph.EnumValue(strings.ToUpper(s[1 : len(s)-1])), nil
	case v.Binary != nil:
		s := *v.Binary
		return graph.Value{Kind: graph.KindBinary, Text: s[1 : len(s)-1]}, nil
	case v.List != nil:
		items, err := convertValues(v.List.Items)
		if err != nil {
			return graph.Value{}, err
		}
		return graph.ListValue(items...), nil
	case v.Typed != nil:
		items, err := convertValues(v.Typed.Items)
		if err != nil {
			return graph.Value{}, err
		}
		return graph.TypedValue(strings.ToUpper(v.Typed.Type), items...), nil
	}
	return graph.Null(), nil
}
