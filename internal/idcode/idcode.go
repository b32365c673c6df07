// Package idcode allocates the compact identifier codes used in the body of
// a merged trace.
//
// Codes are written in bijective base 94 over the printable ASCII range
// '!'..'~', least significant symbol first, so every one-symbol code is
// issued before any two-symbol code:
//
//	0 -> "!"   93 -> "~"   94 -> "!!"   95 -> "\"!"
//
// At most four symbols are used, which caps a run at Capacity codes.
package idcode

import (
	"errors"
	"fmt"
)

const (
	// First is the smallest symbol.
	First byte = '!'
	// Last is the largest symbol.
	Last byte = '~'
	// Base is the number of symbols.
	Base = uint64(Last-First) + 1
	// MaxLen is the longest code issued.
	MaxLen = 4
	// Capacity is the number of codes a run may allocate (94^4).
	Capacity = Base * Base * Base * Base
)

// ErrExhausted is returned once Capacity codes have been allocated.
var ErrExhausted = errors.New("identifier space exhausted")

// Allocator hands out codes in increasing order. The zero value is ready to
// use. It is not safe for concurrent use.
type Allocator struct {
	next uint64
}

// NewAllocator returns an allocator starting at the first code.
func NewAllocator() *Allocator { return &Allocator{} }

// NewAllocatorFrom returns an allocator whose next code is the one for n.
func NewAllocatorFrom(n uint64) *Allocator { return &Allocator{next: n} }

// Allocate returns the next unused code.
func (a *Allocator) Allocate() (string, error) {
	if a.next >= Capacity {
		return "", fmt.Errorf("%w: all %d codes are in use", ErrExhausted, Capacity)
	}
	code := encode(a.next)
	a.next++
	return code, nil
}

// Issued returns how many codes have been allocated.
func (a *Allocator) Issued() uint64 { return a.next }

// Encode returns the code for counter value n.
func Encode(n uint64) (string, error) {
	if n >= Capacity {
		return "", fmt.Errorf("%w: %d is out of range", ErrExhausted, n)
	}
	return encode(n), nil
}

func encode(n uint64) string {
	var buf [MaxLen]byte
	i := 0
	for {
		buf[i] = First + byte(n%Base)
		i++
		n /= Base
		if n == 0 {
			break
		}
		n--
	}
	return string(buf[:i])
}

// Decode returns the counter value of a code produced by Encode.
func Decode(code string) (uint64, error) {
	if code == "" || len(code) > MaxLen {
		return 0, fmt.Errorf("idcode: invalid code %q", code)
	}
	var v uint64
	for i := len(code) - 1; i >= 0; i-- {
		b := code[i]
		if b < First || b > Last {
			return 0, fmt.Errorf("idcode: invalid symbol %q in %q", b, code)
		}
		v = v*Base + uint64(b-First) + 1
	}
	v--
	if v >= Capacity {
		return 0, fmt.Errorf("%w: code %q is beyond the last code", ErrExhausted, code)
	}
	return v, nil
}
