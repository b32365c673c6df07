package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/viant/afs"
)

// source is one opened input.
type source struct {
	index int
	name  string
	file  *os.File // nil for inputs opened by URL
	rc    io.ReadCloser
	size  int64 // -1 when unknown
	read  atomic.Int64
}

func isURL(name string) bool {
	return strings.Contains(name, "://")
}

// openSource opens a local path directly and anything that looks like a URL
// through afs.
func openSource(ctx context.Context, fs afs.Service, index int, name string) (*source, error) {
	src := &source{index: index, name: name, size: -1}
	if isURL(name) {
		if obj, err := fs.Object(ctx, name); err == nil {
			src.size = obj.Size()
		}
		rc, err := fs.OpenURL(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		src.rc = rc
		return src, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
		src.size = info.Size()
	}
	src.file = f
	src.rc = f
	return src, nil
}

// reader returns the sequential stream of the input.
func (s *source) reader() io.Reader {
	return &countingReader{r: s.rc, n: &s.read}
}

// section returns a reader over [off, off+n) of a local input.
func (s *source) section(off, n int64) io.Reader {
	return &countingReader{r: io.NewSectionReader(s.file, off, n), n: &s.read}
}

func (s *source) seekable() bool {
	return s.file != nil && s.size >= 0
}

func (s *source) Close() error {
	if s.rc == nil {
		return nil
	}
	return s.rc.Close()
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
