package vcd

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Timescale is the duration of one time unit, in femtoseconds.
type Timescale uint64

type timeUnit struct {
	name   string
	femtos uint64
}

// ordered from the coarsest unit down
var timeUnits = []timeUnit{
	{"s", 1_000_000_000_000_000},
	{"ms", 1_000_000_000_000},
	{"us", 1_000_000_000},
	{"ns", 1_000_000},
	{"ps", 1_000},
	{"fs", 1},
}

// ParseTimescale parses the words of a `$timescale` directive, e.g.
// ["1ns"] or ["10", "ps"].
func ParseTimescale(words []string) (Timescale, error) {
	text := strings.Join(words, "")
	i := 0
	for i < len(text) && text[i] >= '0' && text[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("%w: timescale %q has no magnitude", ErrMalformed, text)
	}
	n, err := strconv.ParseUint(text[:i], 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: timescale %q: bad magnitude", ErrMalformed, text)
	}
	unit := strings.ToLower(text[i:])
	for _, u := range timeUnits {
		if unit != u.name {
			continue
		}
		hi, lo := bits.Mul64(n, u.femtos)
		if hi != 0 {
			return 0, fmt.Errorf("%w: timescale %q overflows", ErrMalformed, text)
		}
		return Timescale(lo), nil
	}
	return 0, fmt.Errorf("%w: timescale %q: unknown unit", ErrMalformed, text)
}

// String formats the timescale with the coarsest unit that divides it.
func (t Timescale) String() string {
	v := uint64(t)
	if v == 0 {
		return "0fs"
	}
	for _, u := range timeUnits {
		if v%u.femtos == 0 {
			return strconv.FormatUint(v/u.femtos, 10) + u.name
		}
	}
	return strconv.FormatUint(v, 10) + "fs"
}

// GCD returns the greatest common divisor of two timescales.
func GCD(a, b Timescale) Timescale {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
