package pipeline

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"vcdmerge/internal/scope"
	"vcdmerge/internal/vcd"
)

var (
	// ErrNoInputs is returned for a request without inputs.
	ErrNoInputs = errors.New("no input traces")
	// ErrTimescaleMismatch is returned when input timescales cannot be
	// reconciled under the selected policy.
	ErrTimescaleMismatch = errors.New("timescale mismatch")
)

// Policy decides how inputs with different timescales are combined.
type Policy uint8

const (
	// PolicyGCD rescales every input to the greatest common divisor of all
	// timescales.
	PolicyGCD Policy = iota
	// PolicyStrict requires all timescales to be equal.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyGCD:
		return "gcd"
	case PolicyStrict:
		return "strict"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy converts a policy name. The empty string selects PolicyGCD.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gcd":
		return PolicyGCD, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return 0, fmt.Errorf("unknown timescale policy %q (must be gcd or strict)", s)
	}
}

// Options tunes a merge. The zero value is usable.
type Options struct {
	// Reorder splits inputs with decreasing timestamps into ordered
	// sections. Only local files can be reordered.
	Reorder bool
	// Prefetch is the number of groups read ahead per stream on a separate
	// goroutine; 0 reads synchronously.
	Prefetch int
	// Jobs limits concurrent header parsing; 0 means GOMAXPROCS.
	Jobs int
	// Timescale is the timescale policy.
	Timescale Policy
	// LabelTemplate names the per-input root scopes, see scope.Label.
	LabelTemplate string
	// BufferSize is the read and write buffer size in bytes.
	BufferSize int
	// Date and Version override the header metadata of the output.
	Date    string
	Version string
	// IDMap, when set, is the path the identifier map is written to.
	IDMap string

	// firstCode starts identifier allocation further along the code space.
	firstCode uint64
}

func (o Options) withDefaults() Options {
	if o.Jobs <= 0 {
		o.Jobs = runtime.GOMAXPROCS(0)
	}
	if o.BufferSize <= 0 {
		o.BufferSize = vcd.DefaultBufferSize
	}
	if o.LabelTemplate == "" {
		o.LabelTemplate = scope.DefaultLabel
	}
	if o.Prefetch < 0 {
		o.Prefetch = 0
	}
	return o
}
