package merge

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"vcdmerge/internal/vcd"
)

type fetched struct {
	group *vcd.Group
	err   error
}

type prefetcher struct {
	ch  <-chan fetched
	err error
}

// Prefetch reads src on a goroutine of g, keeping up to depth groups ready.
// The engine stays the only consumer, so the merged output is unchanged.
// The goroutine exits at the end of src, on its first error, or when ctx is
// cancelled.
func Prefetch(ctx context.Context, g *errgroup.Group, src Groups, depth int) Groups {
	if depth <= 0 {
		return src
	}
	ch := make(chan fetched, depth)
	g.Go(func() error {
		defer close(ch)
		for {
			grp, err := src.Next()
			select {
			case ch <- fetched{group: grp, err: err}:
			case <-ctx.Done():
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	})
	return &prefetcher{ch: ch}
}

func (p *prefetcher) Next() (*vcd.Group, error) {
	if p.err != nil {
		return nil, p.err
	}
	f, ok := <-p.ch
	if !ok {
		p.err = io.EOF
		return nil, p.err
	}
	if f.err != nil {
		p.err = f.err
		return nil, f.err
	}
	return f.group, nil
}
