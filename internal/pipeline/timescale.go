package pipeline

import (
	"fmt"

	"vcdmerge/internal/vcd"
)

// resolveTimescale picks the output timescale and the factor every input's
// timestamps are multiplied by.
func resolveTimescale(policy Policy, headers []*vcd.Header, names []string) (*vcd.Timescale, []uint64, error) {
	scales := make([]uint64, len(headers))
	for i := range scales {
		scales[i] = 1
	}

	declared := -1
	for i, h := range headers {
		if h.Timescale != nil {
			declared = i
			break
		}
	}
	if declared < 0 {
		return nil, scales, nil
	}

	out := *headers[declared].Timescale
	for i, h := range headers {
		if h.Timescale == nil {
			return nil, nil, fmt.Errorf("%w: %s declares no timescale but %s declares %s",
				ErrTimescaleMismatch, names[i], names[declared], out)
		}
		switch policy {
		case PolicyStrict:
			if *h.Timescale != out {
				return nil, nil, fmt.Errorf("%w: %s uses %s but %s uses %s",
					ErrTimescaleMismatch, names[i], *h.Timescale, names[declared], out)
			}
		default:
			out = vcd.GCD(out, *h.Timescale)
		}
	}
	for i, h := range headers {
		scales[i] = uint64(*h.Timescale / out)
	}
	return &out, scales, nil
}
