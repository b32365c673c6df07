// Package merge interleaves the timestamp groups of several traces into one
// time-ordered sequence.
package merge

import (
	"container/heap"
	"errors"
	"fmt"
	"io"

	"vcdmerge/internal/scope"
	"vcdmerge/internal/vcd"
)

// Groups is a pull iterator over timestamp groups in strictly increasing
// time order. Next returns io.EOF after the last group.
type Groups interface {
	Next() (*vcd.Group, error)
}

// Stream is one ordered source of groups together with the translation of
// its identifiers.
type Stream struct {
	Name   string
	Groups Groups
	Remap  scope.Remap
}

// Engine is a k-way merge over streams. It holds one pending group per
// stream, so memory does not depend on the length of the inputs.
type Engine struct {
	streams []Stream
	heads   []*vcd.Group
	queue   headQueue
	primed  bool

	groups  uint64
	changes uint64
}

// New returns an engine over streams. Within one instant, changes are
// emitted in stream order and then in their original order.
func New(streams []Stream) *Engine {
	e := &Engine{
		streams: streams,
		heads:   make([]*vcd.Group, len(streams)),
	}
	e.queue.heads = e.heads
	e.queue.idx = make([]int, 0, len(streams))
	return e
}

// Next returns the next merged group, or io.EOF once every stream is
// exhausted. All changes carry merged identifiers.
func (e *Engine) Next() (*vcd.Group, error) {
	if !e.primed {
		e.primed = true
		for i := range e.streams {
			if err := e.advance(i); err != nil {
				return nil, err
			}
		}
	}
	if e.queue.Len() == 0 {
		return nil, io.EOF
	}

	t := e.queue.top().Time
	var out *vcd.Group
	for e.queue.Len() > 0 && e.queue.top().Time == t {
		i := heap.Pop(&e.queue).(int)
		g := e.heads[i]
		e.heads[i] = nil
		if err := e.translate(i, g); err != nil {
			return nil, err
		}
		if out == nil {
			out = g
		} else {
			out.Changes = append(out.Changes, g.Changes...)
		}
		if err := e.advance(i); err != nil {
			return nil, err
		}
	}
	e.groups++
	e.changes += uint64(len(out.Changes))
	return out, nil
}

// Groups returns the number of merged groups emitted so far.
func (e *Engine) Groups() uint64 { return e.groups }

// Changes returns the number of value changes emitted so far.
func (e *Engine) Changes() uint64 { return e.changes }

func (e *Engine) advance(i int) error {
	g, err := e.streams[i].Groups.Next()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", e.streams[i].Name, err)
	}
	e.heads[i] = g
	heap.Push(&e.queue, i)
	return nil
}

func (e *Engine) translate(i int, g *vcd.Group) error {
	remap := e.streams[i].Remap
	for k := range g.Changes {
		c := &g.Changes[k]
		id, ok := remap[c.ID]
		if !ok {
			return fmt.Errorf("%s: %w: identifier %q at time %d was never declared",
				e.streams[i].Name, vcd.ErrMalformed, c.ID, g.Time)
		}
		c.ID = id
	}
	return nil
}

// headQueue orders stream indices by the time of their pending group, ties
// broken by stream index.
type headQueue struct {
	idx   []int
	heads []*vcd.Group
}

func (q *headQueue) Len() int { return len(q.idx) }

func (q *headQueue) Less(a, b int) bool {
	ta, tb := q.heads[q.idx[a]].Time, q.heads[q.idx[b]].Time
	if ta != tb {
		return ta < tb
	}
	return q.idx[a] < q.idx[b]
}

func (q *headQueue) Swap(a, b int) { q.idx[a], q.idx[b] = q.idx[b], q.idx[a] }

func (q *headQueue) Push(x any) { q.idx = append(q.idx, x.(int)) }

func (q *headQueue) Pop() any {
	n := len(q.idx) - 1
	i := q.idx[n]
	q.idx = q.idx[:n]
	return i
}

func (q *headQueue) top() *vcd.Group { return q.heads[q.idx[0]] }
