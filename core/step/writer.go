package step

import (
	"bufio"
	"io"

	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// defaultHeader is used for graphs that carry no header of their own.
var defaultHeader = []graph.Header{
	{Name: "FILE_DESCRIPTION", Params: []graph.Value{
		graph.ListValue(graph.StringValue("ViewDefinition [CoordinationView]")),
		graph.StringValue("2;1"),
	}},
	{Name: "FILE_NAME", Params: []graph.Value{
		graph.StringValue(""), graph.StringValue(""),
		graph.ListValue(graph.StringValue("")), graph.ListValue(graph.StringValue("")),
		graph.StringValue(""), graph.StringValue("ifcslim"), graph.StringValue(""),
	}},
	{Name: "FILE_SCHEMA", Params: []graph.Value{
		graph.ListValue(graph.StringValue("IFC2X3")),
	}},
}

// countingWriter counts the bytes passed through to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write serializes g to w, one record per line, entities in ascending
// identifier order. It returns the number of bytes written. The output only
// depends on the graph content.
func Write(w io.Writer, g *graph.Graph) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, 64<<10)

	header := g.Header
	if len(header) == 0 {
		header = defaultHeader
	}

	buf := make([]byte, 0, 512)
	buf = append(buf, "ISO-10303-21;\nHEADER;\n"...)
	for _, h := range header {
		buf = h.AppendSTEP(buf)
		buf = append(buf, '\n')
	}
	buf = append(buf, "ENDSEC;\nDATA;\n"...)
	if _, err := bw.Write(buf); err != nil {
		return cw.n, err
	}

	for _, e := range g.Entities() {
		buf = e.AppendSTEP(buf[:0])
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return cw.n, err
		}
	}

	if _, err := bw.WriteString("ENDSEC;\nEND-ISO-10303-21;\n"); err != nil {
		return cw.n, err
	}
	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}
