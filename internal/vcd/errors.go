package vcd

import (
	"errors"
	"fmt"
)

// ErrMalformed marks input the parser cannot make sense of. The parser does
// not validate traces; it only reports conditions it cannot step over.
var ErrMalformed = errors.New("malformed trace")

func malformed(off int64, format string, args ...any) error {
	return fmt.Errorf("%w: at byte %d: %s", ErrMalformed, off, fmt.Sprintf(format, args...))
}
