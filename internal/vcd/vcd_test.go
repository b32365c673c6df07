package vcd

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

const sampleTrace = `$date
	Mon Oct 19 10:00:00 2026
$end
$version Icarus Verilog $end
$comment generated for tests $end
$timescale 1ns $end
$scope module top $end
$var wire 1 ! clk $end
$var reg 8 " data [7:0] $end
$scope module sub $end
$var real 64 # temp $end
$upscope $end
$upscope $end
$enddefinitions $end
$dumpvars
0!
b00000000 "
r0 #
$end
#10
1!
#20
0!
b10101010 "
r1.5 #
`

func parseSample(t *testing.T, text string) (*Header, *Body) {
	t.Helper()
	sc := NewScanner(strings.NewReader(text), 16)
	h, err := ParseHeader(sc)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	return h, NewBody(sc, 1)
}

func collect(t *testing.T, b *Body) []*Group {
	t.Helper()
	var groups []*Group
	for {
		g, err := b.Next()
		if errors.Is(err, io.EOF) {
			return groups
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		groups = append(groups, g)
	}
}

func TestParseHeader(t *testing.T) {
	h, _ := parseSample(t, sampleTrace)

	if h.Date != "Mon Oct 19 10:00:00 2026" {
		t.Errorf("Date = %q", h.Date)
	}
	if h.Version != "Icarus Verilog" {
		t.Errorf("Version = %q", h.Version)
	}
	if h.Timescale == nil || *h.Timescale != 1_000_000 {
		t.Fatalf("Timescale = %v, want 1ns", h.Timescale)
	}
	if h.Vars() != 3 {
		t.Errorf("Vars() = %d, want 3", h.Vars())
	}
	if h.Scopes() != 2 {
		t.Errorf("Scopes() = %d, want 2", h.Scopes())
	}

	top := h.Items[0].Scope
	if top == nil || top.Kind != "module" || top.Name != "top" {
		t.Fatalf("unexpected top item %+v", h.Items[0])
	}
	data := top.Items[1].Var
	if data.Type != "reg" || data.Width != 8 || data.ID != `"` || data.Ref != "data" || data.Range != "[7:0]" {
		t.Errorf("unexpected var %+v", data)
	}

	var paths []string
	h.Walk(func(path []string, v *Var) {
		paths = append(paths, strings.Join(append(append([]string{}, path...), v.Ref), "."))
	})
	want := []string{"top.clk", "top.data", "top.sub.temp"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("Walk paths = %v, want %v", paths, want)
	}
}

func TestBodyGroups(t *testing.T) {
	_, body := parseSample(t, sampleTrace)
	groups := collect(t, body)

	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	// $dumpvars пропадает, значения внутри остаются в группе времени 0
	if groups[0].Time != 0 || len(groups[0].Changes) != 3 {
		t.Errorf("group 0 = %+v", groups[0])
	}
	if groups[1].Time != 10 || len(groups[1].Changes) != 1 {
		t.Errorf("group 1 = %+v", groups[1])
	}
	want := []Change{
		{ID: "!", Kind: Scalar, Value: "0"},
		{ID: `"`, Kind: Vector, Value: "10101010"},
		{ID: "#", Kind: Real, Value: "1.5"},
	}
	if groups[2].Time != 20 || len(groups[2].Changes) != len(want) {
		t.Fatalf("group 2 = %+v", groups[2])
	}
	for i, c := range want {
		if groups[2].Changes[i] != c {
			t.Errorf("change %d = %+v, want %+v", i, groups[2].Changes[i], c)
		}
	}
}

func TestBodyCoalescesRepeatedMarkers(t *testing.T) {
	text := "$enddefinitions $end\n1!\n#0\n0\"\n#5\n1!\n#5\n0!\n#7\n"
	_, body := parseSample(t, text)
	groups := collect(t, body)

	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if groups[0].Time != 0 || len(groups[0].Changes) != 2 {
		t.Errorf("group 0 = %+v", groups[0])
	}
	if groups[1].Time != 5 || len(groups[1].Changes) != 2 {
		t.Errorf("group 1 = %+v", groups[1])
	}
	if groups[2].Time != 7 || len(groups[2].Changes) != 0 {
		t.Errorf("trailing empty group = %+v", groups[2])
	}
}

func TestBodyRejectsDecreasingTime(t *testing.T) {
	_, body := parseSample(t, "$enddefinitions $end\n#10\n1!\n#5\n0!\n")
	if _, err := body.Next(); err != nil {
		t.Fatalf("first group: %v", err)
	}
	_, err := body.Next()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestBodyScalesTimestamps(t *testing.T) {
	sc := NewScanner(strings.NewReader("#3\n1!\n"), 0)
	g, err := NewBody(sc, 1000).Next()
	if err != nil {
		t.Fatal(err)
	}
	if g.Time != 3000 {
		t.Errorf("Time = %d, want 3000", g.Time)
	}

	sc = NewScanner(strings.NewReader("#18446744073709551615\n1!\n"), 0)
	if _, err := NewBody(sc, 2).Next(); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected overflow to be malformed, got %v", err)
	}
}

func TestBodyMalformedValues(t *testing.T) {
	cases := []string{
		"#1\nb1010\n",
		"#1\n1\n",
		"#x\n",
		"$comment never closed\n",
	}
	for _, text := range cases {
		sc := NewScanner(strings.NewReader(text), 0)
		body := NewBody(sc, 1)
		var err error
		for err == nil {
			_, err = body.Next()
		}
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("%q: expected ErrMalformed, got %v", text, err)
		}
	}
}

func TestParseHeaderErrors(t *testing.T) {
	cases := map[string]string{
		"no enddefinitions": "$scope module top $end\n",
		"stray upscope":     "$upscope $end\n$enddefinitions $end\n",
		"short var":         "$var wire 1 ! $end\n$enddefinitions $end\n",
		"bad width":         "$var wire x ! a $end\n$enddefinitions $end\n",
		"bad timescale":     "$timescale 1 parsec $end\n$enddefinitions $end\n",
		"garbage":           "hello\n$enddefinitions $end\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHeader(NewScanner(strings.NewReader(text), 0))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestTimescale(t *testing.T) {
	cases := []struct {
		words []string
		want  Timescale
		text  string
	}{
		{[]string{"1ns"}, 1_000_000, "1ns"},
		{[]string{"10", "ps"}, 10_000, "10ps"},
		{[]string{"100us"}, 100_000_000_000, "100us"},
		{[]string{"1", "s"}, 1_000_000_000_000_000, "1s"},
		{[]string{"1fs"}, 1, "1fs"},
		{[]string{"1000ps"}, 1_000_000, "1ns"},
	}
	for _, tc := range cases {
		got, err := ParseTimescale(tc.words)
		if err != nil {
			t.Errorf("ParseTimescale(%v): %v", tc.words, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTimescale(%v) = %d, want %d", tc.words, got, tc.want)
		}
		if got.String() != tc.text {
			t.Errorf("String() = %q, want %q", got.String(), tc.text)
		}
	}

	if g := GCD(1_000_000, 10_000); g != 10_000 {
		t.Errorf("GCD(1ns, 10ps) = %v", g)
	}
}

func TestFindSections(t *testing.T) {
	header := "$var wire 1 ! a $end\n$enddefinitions $end\n"
	body := "1!\n#0\n0!\n#10\n1!\n#5\n0!\n#6\n1!\n#2\n0!\n"
	text := header + body

	sc := NewScanner(strings.NewReader(text), 0)
	h, err := ParseHeader(sc)
	if err != nil {
		t.Fatal(err)
	}
	if h.BodyOffset != int64(len(header)) {
		t.Fatalf("BodyOffset = %d, want %d", h.BodyOffset, len(header))
	}

	sections, err := FindSections(sc)
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3: %+v", len(sections), sections)
	}
	wantStarts := []uint64{0, 5, 2}
	for i, s := range sections {
		if s.Start != wantStarts[i] {
			t.Errorf("section %d Start = %d, want %d", i, s.Start, wantStarts[i])
		}
		chunk := text[s.Offset:s.End]
		if i > 0 && !strings.HasPrefix(chunk, "#") {
			t.Errorf("section %d does not start at a marker: %q", i, chunk)
		}
	}
	if sections[0].Offset != h.BodyOffset || sections[2].End != int64(len(text)) {
		t.Errorf("sections do not cover the body: %+v", sections)
	}

	// every section reads back in order
	for _, s := range sections {
		b := NewBody(NewScanner(strings.NewReader(text[s.Offset:s.End]), 0), 1)
		collect(t, b)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	h, body := parseSample(t, sampleTrace)
	groups := collect(t, body)

	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	if err := w.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	for _, g := range groups {
		if err := w.WriteGroup(g); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if strings.Contains(out, "$dumpvars") || strings.Contains(out, "$comment") {
		t.Errorf("directives leaked into output:\n%s", out)
	}
	for _, line := range []string{
		"$timescale 1ns $end",
		"$var reg 8 \" data [7:0] $end",
		"$upscope $end",
		"b10101010 \"",
		"r1.5 #",
		"#20",
	} {
		if !strings.Contains(out, line) {
			t.Errorf("output lacks %q:\n%s", line, out)
		}
	}

	h2, body2 := parseSample(t, out)
	if h2.Vars() != h.Vars() || h2.Scopes() != h.Scopes() || h2.Date != h.Date {
		t.Errorf("header changed on round trip: %+v vs %+v", h2, h)
	}
	groups2 := collect(t, body2)
	if len(groups2) != len(groups) {
		t.Fatalf("round trip produced %d groups, want %d", len(groups2), len(groups))
	}
	for i := range groups {
		if groups[i].Time != groups2[i].Time || len(groups[i].Changes) != len(groups2[i].Changes) {
			t.Errorf("group %d differs: %+v vs %+v", i, groups[i], groups2[i])
		}
	}
}
