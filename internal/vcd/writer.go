package vcd

import (
	"bufio"
	"io"
	"strconv"
)

// Writer serializes a header and a sequence of groups in a single forward
// pass. Write errors are sticky: after the first failure every call returns it.
type Writer struct {
	w   *bufio.Writer
	num []byte
	err error
}

// NewWriter creates a writer with an output buffer of size bytes.
func NewWriter(w io.Writer, size int) *Writer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Writer{w: bufio.NewWriterSize(w, size), num: make([]byte, 0, 20)}
}

// WriteHeader writes the declaration section, `$enddefinitions $end` included.
func (w *Writer) WriteHeader(h *Header) error {
	if h.Date != "" {
		w.directive("$date", h.Date)
	}
	if h.Version != "" {
		w.directive("$version", h.Version)
	}
	if h.Timescale != nil {
		w.directive("$timescale", h.Timescale.String())
	}
	w.items(h.Items)
	w.str("$enddefinitions $end\n")
	return w.err
}

// WriteGroup writes a timestamp marker followed by one line per change.
func (w *Writer) WriteGroup(g *Group) error {
	w.ch('#')
	w.number(g.Time)
	w.ch('\n')
	for i := range g.Changes {
		c := &g.Changes[i]
		if c.Kind == Scalar {
			w.str(c.Value)
			w.str(c.ID)
			w.ch('\n')
			continue
		}
		w.ch(c.Kind.prefix())
		w.str(c.Value)
		w.ch(' ')
		w.str(c.ID)
		w.ch('\n')
	}
	return w.err
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

func (w *Writer) items(items []Item) {
	for _, it := range items {
		switch {
		case it.Var != nil:
			v := it.Var
			w.str("$var ")
			w.str(v.Type)
			w.ch(' ')
			w.number(uint64(v.Width))
			w.ch(' ')
			w.str(v.ID)
			w.ch(' ')
			w.str(v.Ref)
			if v.Range != "" {
				w.ch(' ')
				w.str(v.Range)
			}
			w.str(" $end\n")
		case it.Scope != nil:
			w.str("$scope ")
			w.str(it.Scope.Kind)
			w.ch(' ')
			w.str(it.Scope.Name)
			w.str(" $end\n")
			w.items(it.Scope.Items)
			w.str("$upscope $end\n")
		}
	}
}

func (w *Writer) directive(name, body string) {
	w.str(name)
	w.ch(' ')
	w.str(body)
	w.str(" $end\n")
}

func (w *Writer) str(s string) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.WriteString(s)
}

func (w *Writer) ch(b byte) {
	if w.err != nil {
		return
	}
	w.err = w.w.WriteByte(b)
}

func (w *Writer) number(v uint64) {
	w.num = strconv.AppendUint(w.num[:0], v, 10)
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(w.num)
}
