// Package pipeline runs a complete merge. It opens the inputs, parses and
// composes their headers, and streams the merged body to the output.
//
// Progress is reported through a ProgressSink, which may be called from
// several goroutines at once. Trace spans are taken from the tracer carried
// by the context.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/viant/afs"
	"golang.org/x/sync/errgroup"

	"vcdmerge/internal/idcode"
	"vcdmerge/internal/idmap"
	"vcdmerge/internal/merge"
	"vcdmerge/internal/observ"
	"vcdmerge/internal/scope"
	"vcdmerge/internal/trace"
	"vcdmerge/internal/vcd"
	"vcdmerge/internal/version"
)

// StdoutPath is the output name that selects standard output.
const StdoutPath = "-"

// progressEvery is the number of merged groups between progress events.
const progressEvery = 1 << 12

// Request describes one merge.
type Request struct {
	Inputs   []string
	Labels   []string // optional root scope names by input index
	Output   string
	Options  Options
	Progress ProgressSink
}

// Result summarizes a finished merge.
type Result struct {
	Output    string
	Inputs    int
	Signals   int
	Streams   int
	Groups    uint64
	Changes   uint64
	Timescale string
	BytesRead int64
	Timing    observ.Report
}

type run struct {
	req    *Request
	opts   Options
	tracer trace.Tracer
	parent uint64
	timer  *observ.Timer
	start  time.Time

	sources  []*source
	scanners []*vcd.Scanner
	headers  []*vcd.Header
}

func newRun(ctx context.Context, req *Request) *run {
	return &run{
		req:    req,
		opts:   req.Options.withDefaults(),
		tracer: trace.FromContext(ctx),
		parent: trace.ParentID(ctx),
		timer:  observ.NewTimer(),
		start:  time.Now(),
	}
}

// Merge merges req.Inputs into req.Output. Nothing is left at the output
// path unless the merge succeeds.
func Merge(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	if req.Output == "" {
		return nil, errors.New("no output path")
	}
	r := newRun(ctx, req)
	defer r.close()

	span := trace.Begin(r.tracer, trace.ScopeDriver, "merge", r.parent)
	res, err := r.merge(trace.WithParent(ctx, span))
	if err != nil {
		trace.Fail(r.tracer, "merge", err, span.ID())
		span.End("error")
		r.emit(Event{Stage: StageMerge, Status: StatusError, Err: err})
		return nil, err
	}
	span.WithExtra("groups", strconv.FormatUint(res.Groups, 10)).End("ok")
	r.emit(Event{Stage: StageMerge, Status: StatusDone})
	return res, nil
}

func (r *run) merge(ctx context.Context) (*Result, error) {
	if err := r.open(ctx); err != nil {
		return nil, err
	}
	if err := r.parseHeaders(ctx); err != nil {
		return nil, err
	}

	names := r.req.Inputs
	ts, scales, err := resolveTimescale(r.opts.Timescale, r.headers, names)
	if err != nil {
		return nil, err
	}

	tree, remaps, err := r.compose(ctx)
	if err != nil {
		return nil, err
	}
	header := r.outputHeader(ts, tree)

	streams, err := r.streams(ctx, scales, remaps)
	if err != nil {
		return nil, err
	}

	mctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(mctx)
	if r.opts.Prefetch > 0 {
		for i := range streams {
			streams[i].Groups = merge.Prefetch(gctx, g, streams[i].Groups, r.opts.Prefetch)
		}
	}

	engine := merge.New(streams)
	err = r.write(ctx, header, engine)
	cancel()
	if werr := g.Wait(); err == nil && werr != nil && !errors.Is(werr, context.Canceled) {
		err = werr
	}
	if err != nil {
		return nil, err
	}

	if r.opts.IDMap != "" {
		idx := r.timer.Begin("idmap")
		m, err := idmap.Build(tree, names, r.req.Output)
		if err == nil {
			err = idmap.Write(r.opts.IDMap, m)
		}
		if err != nil {
			return nil, fmt.Errorf("identifier map: %w", err)
		}
		r.timer.End(idx, r.opts.IDMap)
	}

	res := &Result{
		Output:  r.req.Output,
		Inputs:  len(r.sources),
		Signals: len(tree.Signals),
		Streams: len(streams),
		Groups:  engine.Groups(),
		Changes: engine.Changes(),
		Timing:  r.timer.Report(),
	}
	if ts != nil {
		res.Timescale = ts.String()
	}
	for _, src := range r.sources {
		res.BytesRead += src.read.Load()
	}
	return res, nil
}

func (r *run) emit(ev Event) {
	if r.req.Progress == nil {
		return
	}
	ev.Elapsed = time.Since(r.start)
	r.req.Progress.OnEvent(ev)
}

func (r *run) open(ctx context.Context) error {
	var fs afs.Service
	r.sources = make([]*source, 0, len(r.req.Inputs))
	for i, name := range r.req.Inputs {
		if isURL(name) && fs == nil {
			fs = afs.New()
		}
		src, err := openSource(ctx, fs, i, name)
		if err != nil {
			return err
		}
		r.sources = append(r.sources, src)
		r.emit(Event{File: name, Stage: StageHeaders, Status: StatusQueued, Total: src.size})
	}
	return nil
}

func (r *run) close() {
	for _, src := range r.sources {
		_ = src.Close()
	}
}

// parseHeaders reads every header concurrently. The scanners are kept
// positioned at the start of each body.
func (r *run) parseHeaders(ctx context.Context) error {
	span := trace.Begin(r.tracer, trace.ScopePhase, "headers", trace.ParentID(ctx))
	idx := r.timer.Begin("headers")

	r.scanners = make([]*vcd.Scanner, len(r.sources))
	r.headers = make([]*vcd.Header, len(r.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Jobs)
	for i, src := range r.sources {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s := trace.Begin(r.tracer, trace.ScopeSource, "header:"+src.name, span.ID())
			r.emit(Event{File: src.name, Stage: StageHeaders, Status: StatusWorking, Total: src.size})

			sc := vcd.NewScanner(src.reader(), r.opts.BufferSize)
			h, err := vcd.ParseHeader(sc)
			if err != nil {
				s.End("error")
				err = fmt.Errorf("%s: %w", src.name, err)
				r.emit(Event{File: src.name, Stage: StageHeaders, Status: StatusError, Err: err})
				return err
			}
			r.scanners[i], r.headers[i] = sc, h
			s.WithExtra("vars", strconv.Itoa(h.Vars())).End("")
			r.emit(Event{File: src.name, Stage: StageHeaders, Status: StatusDone, Done: src.read.Load(), Total: src.size})
			return nil
		})
	}
	err := g.Wait()
	r.timer.End(idx, fmt.Sprintf("%d inputs", len(r.sources)))
	if err != nil {
		span.End("error")
		return err
	}
	span.End("ok")
	return nil
}

func (r *run) compose(ctx context.Context) (*scope.Tree, []scope.Remap, error) {
	span := trace.Begin(r.tracer, trace.ScopePhase, "compose", trace.ParentID(ctx))
	idx := r.timer.Begin("compose")
	r.emit(Event{Stage: StageCompose, Status: StatusWorking})

	alloc := idcode.NewAllocatorFrom(r.opts.firstCode)
	c := scope.NewComposer(alloc)
	remaps := make([]scope.Remap, len(r.headers))
	for i, h := range r.headers {
		var label string
		if i < len(r.req.Labels) {
			label = r.req.Labels[i]
		}
		if label == "" {
			label = scope.Label(r.opts.LabelTemplate, i, r.req.Inputs[i])
		}
		remap, err := c.Add(i, label, h)
		if err != nil {
			span.End("error")
			return nil, nil, err
		}
		remaps[i] = remap
	}

	tree := c.Tree()
	r.timer.End(idx, fmt.Sprintf("%d signals", len(tree.Signals)))
	span.WithExtra("codes", strconv.FormatUint(alloc.Issued()-r.opts.firstCode, 10)).End("ok")
	return tree, remaps, nil
}

func (r *run) outputHeader(ts *vcd.Timescale, tree *scope.Tree) *vcd.Header {
	h := &vcd.Header{
		Date:      r.opts.Date,
		Version:   r.opts.Version,
		Timescale: ts,
		Items:     tree.Items(),
	}
	for _, in := range r.headers {
		if h.Date == "" {
			h.Date = in.Date
		}
		if h.Version == "" {
			h.Version = in.Version
		}
	}
	if h.Version == "" {
		h.Version = version.Generator()
	}
	return h
}

// streams builds one merge stream per input, or one per ordered section when
// reordering a local file.
func (r *run) streams(ctx context.Context, scales []uint64, remaps []scope.Remap) ([]merge.Stream, error) {
	streams := make([]merge.Stream, 0, len(r.sources))
	var span *trace.Span
	if r.opts.Reorder {
		span = trace.Begin(r.tracer, trace.ScopePhase, "sections", trace.ParentID(ctx))
		defer func() { span.End("") }()
	}
	for i, src := range r.sources {
		if !r.opts.Reorder || !src.seekable() {
			streams = append(streams, merge.Stream{
				Name:   src.name,
				Groups: vcd.NewBody(r.scanners[i], scales[i]),
				Remap:  remaps[i],
			})
			continue
		}

		r.emit(Event{File: src.name, Stage: StageSections, Status: StatusWorking, Total: src.size})
		sections, err := vcd.FindSections(r.scanners[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.name, err)
		}
		// only the header counts, the sections are read again below
		src.read.Store(sections[0].Offset)
		trace.Point(r.tracer, trace.ScopeSource, "sections:"+src.name, strconv.Itoa(len(sections)), span.ID())
		for k, sec := range sections {
			name := src.name
			if len(sections) > 1 {
				name = fmt.Sprintf("%s[%d]", src.name, k)
			}
			sc := vcd.NewScanner(src.section(sec.Offset, sec.Len()), r.opts.BufferSize)
			streams = append(streams, merge.Stream{
				Name:   name,
				Groups: vcd.NewBody(sc, scales[i]),
				Remap:  remaps[i],
			})
		}
	}
	return streams, nil
}

func (r *run) write(ctx context.Context, header *vcd.Header, engine *merge.Engine) (err error) {
	span := trace.Begin(r.tracer, trace.ScopePhase, "merge", trace.ParentID(ctx))
	idx := r.timer.Begin("merge")
	defer func() {
		r.timer.End(idx, fmt.Sprintf("%d groups", engine.Groups()))
		if err != nil {
			span.End("error")
			return
		}
		span.WithExtra("changes", strconv.FormatUint(engine.Changes(), 10)).End("ok")
	}()

	out, err := createOutput(r.req.Output)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.abort()
		}
	}()

	w := vcd.NewWriter(out.w, r.opts.BufferSize)
	if err := w.WriteHeader(header); err != nil {
		return err
	}
	r.progress(StatusWorking)
	perGroup := r.tracer.Level().ShouldEmit(trace.ScopeGroup)
	for {
		g, err := engine.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := w.WriteGroup(g); err != nil {
			return err
		}
		if perGroup {
			trace.Point(r.tracer, trace.ScopeGroup, "group", strconv.FormatUint(g.Time, 10), span.ID())
		}
		if engine.Groups()%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.progress(StatusWorking)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := out.commit(); err != nil {
		return err
	}
	r.progress(StatusDone)
	return nil
}

func (r *run) progress(status Status) {
	for _, src := range r.sources {
		r.emit(Event{File: src.name, Stage: StageMerge, Status: status, Done: src.read.Load(), Total: src.size})
	}
}

// output is the destination of a merge. Files are written under a
// temporary name in the target directory and renamed on commit.
type output struct {
	w    io.Writer
	f    *os.File
	path string
}

func createOutput(path string) (*output, error) {
	if path == StdoutPath {
		return &output{w: os.Stdout}, nil
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &output{w: f, f: f, path: path}, nil
}

func (o *output) commit() error {
	if o.f == nil {
		return nil
	}
	if err := o.f.Chmod(0o644); err != nil {
		o.abort()
		return err
	}
	if err := o.f.Close(); err != nil {
		_ = os.Remove(o.f.Name())
		return err
	}
	if err := os.Rename(o.f.Name(), o.path); err != nil {
		_ = os.Remove(o.f.Name())
		return err
	}
	o.f = nil
	return nil
}

func (o *output) abort() {
	if o.f == nil {
		return
	}
	_ = o.f.Close()
	_ = os.Remove(o.f.Name())
	o.f = nil
}
