package vcd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// ParseHeader consumes the declaration section up to and including
// `$enddefinitions $end`. The scanner is left positioned at the body.
func ParseHeader(sc *Scanner) (*Header, error) {
	h := &Header{}
	var stack []*Scope

	add := func(it Item) {
		if len(stack) == 0 {
			h.Items = append(h.Items, it)
			return
		}
		top := stack[len(stack)-1]
		top.Items = append(top.Items, it)
	}

	for {
		tok, err := sc.Next()
		if errors.Is(err, io.EOF) {
			return nil, malformed(sc.Consumed(), "missing $enddefinitions")
		}
		if err != nil {
			return nil, err
		}
		off := sc.Offset()

		switch string(tok) {
		case "$date":
			words, err := sc.Words()
			if err != nil {
				return nil, err
			}
			h.Date = strings.Join(words, " ")

		case "$version":
			words, err := sc.Words()
			if err != nil {
				return nil, err
			}
			h.Version = strings.Join(words, " ")

		case "$timescale":
			words, err := sc.Words()
			if err != nil {
				return nil, err
			}
			ts, err := ParseTimescale(words)
			if err != nil {
				return nil, fmt.Errorf("at byte %d: %w", off, err)
			}
			h.Timescale = &ts

		case "$scope":
			words, err := sc.Words()
			if err != nil {
				return nil, err
			}
			if len(words) < 2 {
				return nil, malformed(off, "$scope needs a kind and a name")
			}
			scope := &Scope{Kind: words[0], Name: strings.Join(words[1:], " ")}
			add(Item{Scope: scope})
			stack = append(stack, scope)

		case "$upscope":
			if err := sc.Skip(); err != nil {
				return nil, err
			}
			if len(stack) == 0 {
				return nil, malformed(off, "$upscope without $scope")
			}
			stack = stack[:len(stack)-1]

		case "$var":
			words, err := sc.Words()
			if err != nil {
				return nil, err
			}
			v, err := parseVar(words)
			if err != nil {
				return nil, malformed(off, "%v", err)
			}
			add(Item{Var: v})

		case "$enddefinitions":
			if err := sc.Skip(); err != nil {
				return nil, err
			}
			// unclosed scopes are closed implicitly
			h.BodyOffset = sc.Consumed()
			return h, nil

		default:
			if tok[0] != '$' {
				return nil, malformed(off, "unexpected %q in header", tok)
			}
			// $comment and vendor directives carry nothing we keep
			if err := sc.Skip(); err != nil {
				return nil, err
			}
		}
	}
}

func parseVar(words []string) (*Var, error) {
	if len(words) < 4 {
		return nil, fmt.Errorf("$var needs type, width, identifier and name, got %q", strings.Join(words, " "))
	}
	n, err := strconv.ParseUint(words[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("$var width %q: %w", words[1], err)
	}
	width, err := safecast.Conv[uint32](n)
	if err != nil {
		return nil, fmt.Errorf("$var width %q: %w", words[1], err)
	}
	return &Var{
		Type:  words[0],
		Width: width,
		ID:    words[2],
		Ref:   words[3],
		Range: strings.Join(words[4:], " "),
	}, nil
}
