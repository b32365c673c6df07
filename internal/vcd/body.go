package vcd

import (
	"errors"
	"io"
	"math/bits"
	"strconv"
)

// Body iterates the value changes of a trace one timestamp group at a time.
// It is a pull iterator: nothing is read until Next is called.
type Body struct {
	sc    *Scanner
	scale uint64

	pending    uint64 // timestamp of the marker read ahead
	pendingOff int64
	hasPending bool

	started bool
	emitted bool
	last    uint64
	lastOff int64

	// unordered accepts decreasing timestamps (section discovery)
	unordered bool
	// discard drops value changes instead of collecting them
	discard bool
}

// NewBody returns an iterator over the body that sc is positioned at.
// Every timestamp is multiplied by scale.
func NewBody(sc *Scanner, scale uint64) *Body {
	if scale == 0 {
		scale = 1
	}
	return &Body{sc: sc, scale: scale}
}

// Next returns the next group, or io.EOF after the last one. Groups come out
// in strictly increasing time order; changes that precede the first
// timestamp marker belong to time 0. The returned group is never reused.
func (b *Body) Next() (*Group, error) {
	if !b.started {
		b.started = true
		changes, err := b.readChanges(nil)
		if err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			return b.finish(&Group{Time: 0, Changes: changes}, 0)
		}
	}
	if !b.hasPending {
		return nil, io.EOF
	}
	g := &Group{Time: b.pending}
	off := b.pendingOff
	b.hasPending = false
	changes, err := b.readChanges(nil)
	if err != nil {
		return nil, err
	}
	g.Changes = changes
	return b.finish(g, off)
}

// Offset returns the byte offset of the marker that opened the group last
// returned by Next.
func (b *Body) Offset() int64 { return b.lastOff }

func (b *Body) finish(g *Group, off int64) (*Group, error) {
	// coalesce repeated markers for the same instant
	for b.hasPending && b.pending == g.Time {
		b.hasPending = false
		changes, err := b.readChanges(g.Changes)
		if err != nil {
			return nil, err
		}
		g.Changes = changes
	}
	if b.emitted && g.Time <= b.last && !b.unordered {
		return nil, malformed(off, "timestamp %d follows %d", g.Time, b.last)
	}
	b.emitted = true
	b.last = g.Time
	b.lastOff = off
	return g, nil
}

// readChanges appends value changes to dst until the next timestamp marker
// or the end of input.
func (b *Body) readChanges(dst []Change) ([]Change, error) {
	for {
		tok, err := b.sc.Next()
		if errors.Is(err, io.EOF) {
			return dst, nil
		}
		if err != nil {
			return nil, err
		}
		off := b.sc.Offset()

		switch tok[0] {
		case '#':
			t, err := strconv.ParseUint(string(tok[1:]), 10, 64)
			if err != nil {
				return nil, malformed(off, "bad timestamp %q", tok)
			}
			hi, lo := bits.Mul64(t, b.scale)
			if hi != 0 {
				return nil, malformed(off, "timestamp %d overflows when rescaled by %d", t, b.scale)
			}
			b.pending = lo
			b.pendingOff = off
			b.hasPending = true
			return dst, nil

		case '$':
			// dump-control directives and their $end are dropped, the values
			// they enclose are kept
			if string(tok) == "$comment" {
				if err := b.sc.Skip(); err != nil {
					return nil, err
				}
			}

		case 'b', 'B', 'r', 'R', 's', 'S':
			kind := Vector
			switch tok[0] {
			case 'r', 'R':
				kind = Real
			case 's', 'S':
				kind = String
			}
			var value string
			if !b.discard {
				value = string(tok[1:])
			}
			id, err := b.sc.Next()
			if errors.Is(err, io.EOF) {
				return nil, malformed(off, "value %q has no identifier", value)
			}
			if err != nil {
				return nil, err
			}
			if !b.discard {
				dst = append(dst, Change{ID: string(id), Kind: kind, Value: value})
			}

		default:
			if len(tok) < 2 {
				return nil, malformed(off, "value %q has no identifier", tok)
			}
			if !b.discard {
				dst = append(dst, Change{ID: string(tok[1:]), Kind: Scalar, Value: string(tok[:1])})
			}
		}
	}
}
