package vcd

import (
	"errors"
	"io"
)

// Section is a byte range of a body whose timestamps never decrease.
type Section struct {
	Offset int64  // absolute offset of the first byte
	End    int64  // absolute offset one past the last byte
	Start  uint64 // first timestamp (unscaled)
}

// Len returns the size of the section in bytes.
func (s Section) Len() int64 { return s.End - s.Offset }

// FindSections consumes the body sc is positioned at and splits it into
// maximal runs of non-decreasing timestamps. Offsets are in the scanner's
// coordinates, which are absolute when sc also read the header. The first
// section starts where the body does, so changes preceding the first marker
// stay with it.
func FindSections(sc *Scanner) ([]Section, error) {
	base := sc.Consumed()
	body := NewBody(sc, 1)
	body.unordered = true
	body.discard = true

	sections := []Section{{Offset: base}}
	first := true
	var last uint64
	for {
		g, err := body.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch {
		case first:
			sections[0].Start = g.Time
			first = false
		case g.Time < last:
			off := body.Offset()
			sections[len(sections)-1].End = off
			sections = append(sections, Section{Offset: off, Start: g.Time})
		}
		last = g.Time
	}
	sections[len(sections)-1].End = sc.Consumed()
	return sections, nil
}
