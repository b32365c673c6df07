package pipeline

import (
	"context"
	"fmt"

	"vcdmerge/internal/vcd"
)

// Summary describes one input without merging it.
type Summary struct {
	Path      string
	Size      int64 // -1 when unknown
	Date      string
	Version   string
	Timescale string
	Scopes    int
	Vars      int
	// Sections holds the ordered runs of the body; it is nil unless the
	// body was scanned.
	Sections []vcd.Section
}

// Ordered reports whether the body never goes back in time. It is only
// meaningful when Sections were collected.
func (s *Summary) Ordered() bool { return len(s.Sections) <= 1 }

// Inspect parses the header of every input. With scanBody set, the body is
// read as well to find out-of-order sections.
func Inspect(ctx context.Context, inputs []string, opts Options, scanBody bool) ([]Summary, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	r := newRun(ctx, &Request{Inputs: inputs, Options: opts})
	defer r.close()

	if err := r.open(ctx); err != nil {
		return nil, err
	}
	if err := r.parseHeaders(ctx); err != nil {
		return nil, err
	}

	out := make([]Summary, len(inputs))
	for i, h := range r.headers {
		s := Summary{
			Path:    inputs[i],
			Size:    r.sources[i].size,
			Date:    h.Date,
			Version: h.Version,
			Scopes:  h.Scopes(),
			Vars:    h.Vars(),
		}
		if h.Timescale != nil {
			s.Timescale = h.Timescale.String()
		}
		if scanBody {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			sections, err := vcd.FindSections(r.scanners[i])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", inputs[i], err)
			}
			s.Sections = sections
		}
		out[i] = s
	}
	return out, nil
}
