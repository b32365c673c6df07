package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcdmerge/internal/idcode"
	"vcdmerge/internal/idmap"
	"vcdmerge/internal/vcd"
)

const traceA = `$timescale 1ns $end
$scope module top $end
$var wire 1 ! clk $end
$var wire 1 " rst $end
$upscope $end
$enddefinitions $end
#0
1!
0"
#10
0!
1"
`

const traceB = `$timescale 1ns $end
$scope module top $end
$var wire 1 ! x $end
$upscope $end
$enddefinitions $end
#5
1!
#10
0!
`

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readGroups(t *testing.T, path string) (*vcd.Header, []*vcd.Group) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sc := vcd.NewScanner(f, 0)
	h, err := vcd.ParseHeader(sc)
	require.NoError(t, err)
	body := vcd.NewBody(sc, 1)
	var groups []*vcd.Group
	for {
		g, err := body.Next()
		if errors.Is(err, io.EOF) {
			return h, groups
		}
		require.NoError(t, err)
		groups = append(groups, g)
	}
}

func assertNoOutput(t *testing.T, dir, out string, inputs int) {
	t.Helper()
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "output must not exist")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, inputs, "temporary files must be removed")
}

func TestMergeScenario(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceA)
	b := writeInput(t, dir, "b.vcd", traceB)
	out := filepath.Join(dir, "out.vcd")

	res, err := Merge(context.Background(), &Request{
		Inputs:  []string{a, b},
		Output:  out,
		Options: Options{Version: "test"},
	})
	require.NoError(t, err)

	want := `$version test $end
$timescale 1ns $end
$scope module input1 $end
$scope module top $end
$var wire 1 ! clk $end
$var wire 1 " rst $end
$upscope $end
$upscope $end
$scope module input2 $end
$scope module top $end
$var wire 1 # x $end
$upscope $end
$upscope $end
$enddefinitions $end
#0
1!
0"
#5
1#
#10
0!
1"
0#
`
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))

	assert.Equal(t, 2, res.Inputs)
	assert.Equal(t, 3, res.Signals)
	assert.Equal(t, uint64(3), res.Groups)
	assert.Equal(t, uint64(6), res.Changes)
	assert.Equal(t, "1ns", res.Timescale)
	assert.Equal(t, int64(len(traceA)+len(traceB)), res.BytesRead)
	assert.NotEmpty(t, res.Timing.Phases)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestMergeSingleInputKeepsBody(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceA)
	out := filepath.Join(dir, "out.vcd")

	_, err := Merge(context.Background(), &Request{Inputs: []string{a}, Output: out})
	require.NoError(t, err)

	inHeader, inGroups := readGroups(t, a)
	outHeader, outGroups := readGroups(t, out)
	assert.Equal(t, inHeader.Vars(), outHeader.Vars())
	assert.Equal(t, inHeader.Scopes()+1, outHeader.Scopes(), "one root scope is added")
	assert.Equal(t, inGroups, outGroups)
}

func TestMergeDeclarationsAreDistinct(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for _, name := range []string{"a.vcd", "b.vcd", "c.vcd"} {
		inputs = append(inputs, writeInput(t, dir, name, traceA))
	}
	out := filepath.Join(dir, "out.vcd")
	_, err := Merge(context.Background(), &Request{Inputs: inputs, Output: out})
	require.NoError(t, err)

	h, groups := readGroups(t, out)
	assert.Equal(t, 6, h.Vars())
	seen := map[string]bool{}
	for _, v := range collectVars(h) {
		assert.False(t, seen[v.ID], "identifier %q declared twice", v.ID)
		seen[v.ID] = true
	}
	for i := 1; i < len(groups); i++ {
		assert.Greater(t, groups[i].Time, groups[i-1].Time)
	}
	for _, g := range groups {
		for _, c := range g.Changes {
			assert.True(t, seen[c.ID], "change uses undeclared %q", c.ID)
		}
	}
}

func collectVars(h *vcd.Header) []*vcd.Var {
	var out []*vcd.Var
	h.Walk(func(_ []string, v *vcd.Var) { out = append(out, v) })
	return out
}

func TestMergeTimescaleGCD(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", "$timescale 10ns $end\n$var wire 1 ! a $end\n$enddefinitions $end\n#1\n1!\n")
	b := writeInput(t, dir, "b.vcd", "$timescale 1 ns $end\n$var wire 1 ! b $end\n$enddefinitions $end\n#5\n1!\n")
	out := filepath.Join(dir, "out.vcd")

	res, err := Merge(context.Background(), &Request{Inputs: []string{a, b}, Output: out})
	require.NoError(t, err)
	assert.Equal(t, "1ns", res.Timescale)

	_, groups := readGroups(t, out)
	require.Len(t, groups, 2)
	assert.Equal(t, uint64(5), groups[0].Time)
	assert.Equal(t, uint64(10), groups[1].Time)
}

func TestMergeTimescaleConflicts(t *testing.T) {
	cases := map[string]struct {
		a, b   string
		policy Policy
	}{
		"strict": {
			a:      "$timescale 10ns $end\n$enddefinitions $end\n",
			b:      "$timescale 1ns $end\n$enddefinitions $end\n",
			policy: PolicyStrict,
		},
		"partial": {
			a: "$timescale 1ns $end\n$enddefinitions $end\n",
			b: "$enddefinitions $end\n",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			a := writeInput(t, dir, "a.vcd", tc.a)
			b := writeInput(t, dir, "b.vcd", tc.b)
			out := filepath.Join(dir, "out.vcd")
			_, err := Merge(context.Background(), &Request{
				Inputs:  []string{a, b},
				Output:  out,
				Options: Options{Timescale: tc.policy},
			})
			assert.ErrorIs(t, err, ErrTimescaleMismatch)
			assertNoOutput(t, dir, out, 2)
		})
	}
}

func TestMergeWithoutTimescale(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", "$var wire 1 ! a $end\n$enddefinitions $end\n#3\n1!\n")
	out := filepath.Join(dir, "out.vcd")
	res, err := Merge(context.Background(), &Request{Inputs: []string{a}, Output: out})
	require.NoError(t, err)
	assert.Empty(t, res.Timescale)

	h, groups := readGroups(t, out)
	assert.Nil(t, h.Timescale)
	require.Len(t, groups, 1)
	assert.Equal(t, uint64(3), groups[0].Time)
}

func TestMergeExhaustionLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceA)
	b := writeInput(t, dir, "b.vcd", traceB)
	out := filepath.Join(dir, "out.vcd")

	_, err := Merge(context.Background(), &Request{
		Inputs:  []string{a, b},
		Output:  out,
		Options: Options{firstCode: idcode.Capacity - 2},
	})
	assert.ErrorIs(t, err, idcode.ErrExhausted)
	assertNoOutput(t, dir, out, 2)
}

func TestMergeMalformedLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceA)
	bad := writeInput(t, dir, "bad.vcd", "$var wire 1 ! a $end\n$enddefinitions $end\n#1\n1?\n")
	out := filepath.Join(dir, "out.vcd")

	for _, prefetch := range []int{0, 2} {
		_, err := Merge(context.Background(), &Request{
			Inputs:  []string{a, bad},
			Output:  out,
			Options: Options{Prefetch: prefetch},
		})
		assert.ErrorIs(t, err, vcd.ErrMalformed)
		assertNoOutput(t, dir, out, 2)
	}
}

func TestMergeMissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.vcd")
	_, err := Merge(context.Background(), &Request{
		Inputs: []string{filepath.Join(dir, "missing.vcd")},
		Output: out,
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assertNoOutput(t, dir, out, 0)

	_, err = Merge(context.Background(), &Request{Output: out})
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestMergeReorder(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", "$var wire 1 ! a $end\n$enddefinitions $end\n#0\n1!\n#10\n0!\n#5\n1!\n#20\n0!\n")
	out := filepath.Join(dir, "out.vcd")

	_, err := Merge(context.Background(), &Request{Inputs: []string{a}, Output: out})
	require.ErrorIs(t, err, vcd.ErrMalformed)

	res, err := Merge(context.Background(), &Request{
		Inputs:  []string{a},
		Output:  out,
		Options: Options{Reorder: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streams)

	_, groups := readGroups(t, out)
	var times []uint64
	for _, g := range groups {
		times = append(times, g.Time)
	}
	assert.Equal(t, []uint64{0, 5, 10, 20}, times)
}

func TestMergePrefetchKeepsOutput(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceA)
	b := writeInput(t, dir, "b.vcd", traceB)

	var outputs [][]byte
	for i, prefetch := range []int{0, 1, 8} {
		out := filepath.Join(dir, "out"+string(rune('0'+i))+".vcd")
		_, err := Merge(context.Background(), &Request{
			Inputs:  []string{a, b},
			Output:  out,
			Options: Options{Prefetch: prefetch, Jobs: 1},
		})
		require.NoError(t, err)
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		outputs = append(outputs, data)
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])
}

func TestMergeLabels(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "cpu.vcd", traceA)
	b := writeInput(t, dir, "gpu.vcd", traceB)
	out := filepath.Join(dir, "out.vcd")

	_, err := Merge(context.Background(), &Request{
		Inputs:  []string{a, b},
		Labels:  []string{"", "graphics"},
		Output:  out,
		Options: Options{LabelTemplate: "{name}"},
	})
	require.NoError(t, err)

	h, _ := readGroups(t, out)
	require.Len(t, h.Items, 2)
	assert.Equal(t, "cpu", h.Items[0].Scope.Name)
	assert.Equal(t, "graphics", h.Items[1].Scope.Name)
}

func TestMergeMetadata(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceB)
	b := writeInput(t, dir, "b.vcd", "$date today $end\n$version sim 2 $end\n"+traceA)
	out := filepath.Join(dir, "out.vcd")

	_, err := Merge(context.Background(), &Request{Inputs: []string{a, b}, Output: out})
	require.NoError(t, err)
	h, _ := readGroups(t, out)
	assert.Equal(t, "today", h.Date)
	assert.Equal(t, "sim 2", h.Version)

	_, err = Merge(context.Background(), &Request{Inputs: []string{a}, Output: out})
	require.NoError(t, err)
	h, _ = readGroups(t, out)
	assert.Contains(t, h.Version, "vcdmerge")
}

func TestMergeWritesIDMap(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceA)
	b := writeInput(t, dir, "b.vcd", traceB)
	out := filepath.Join(dir, "out.vcd")
	mapPath := filepath.Join(dir, "maps", "out.idmap")

	_, err := Merge(context.Background(), &Request{
		Inputs:  []string{a, b},
		Output:  out,
		Options: Options{IDMap: mapPath},
	})
	require.NoError(t, err)

	m, err := idmap.Read(mapPath)
	require.NoError(t, err)
	assert.Equal(t, out, m.Output)
	require.Len(t, m.Inputs, 2)
	assert.Equal(t, b, m.Inputs[1].Path)
	assert.Equal(t, []idmap.Entry{{Orig: "!", New: "#", Scope: "top", Ref: "x"}}, m.Inputs[1].Entries)
}

func TestMergeReplacesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceA)
	out := writeInput(t, dir, "out.vcd", "stale")

	_, err := Merge(context.Background(), &Request{Inputs: []string{a}, Output: out})
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("$version")))
}

func TestMergeCancelled(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceA)
	out := filepath.Join(dir, "out.vcd")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Merge(ctx, &Request{Inputs: []string{a}, Output: out})
	assert.ErrorIs(t, err, context.Canceled)
	assertNoOutput(t, dir, out, 1)
}

func TestMergeProgress(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", traceA)
	b := writeInput(t, dir, "b.vcd", traceB)
	out := filepath.Join(dir, "out.vcd")

	var mu sync.Mutex
	var events []Event
	sink := FuncSink(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	_, err := Merge(context.Background(), &Request{Inputs: []string{a, b}, Output: out, Progress: sink})
	require.NoError(t, err)

	done := map[string]Event{}
	for _, ev := range events {
		if ev.Stage == StageMerge && ev.Status == StatusDone {
			done[ev.File] = ev
		}
	}
	require.Contains(t, done, "")
	for _, name := range []string{a, b} {
		ev, ok := done[name]
		require.True(t, ok, "no final event for %s", name)
		assert.Equal(t, ev.Total, ev.Done)
	}
	assert.Equal(t, StatusQueued, events[0].Status)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.vcd", "$date today $end\n"+traceA)
	b := writeInput(t, dir, "b.vcd", "$var wire 1 ! a $end\n$enddefinitions $end\n#10\n1!\n#5\n0!\n")

	summaries, err := Inspect(context.Background(), []string{a, b}, Options{}, true)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "today", summaries[0].Date)
	assert.Equal(t, "1ns", summaries[0].Timescale)
	assert.Equal(t, 2, summaries[0].Vars)
	assert.Equal(t, 1, summaries[0].Scopes)
	assert.True(t, summaries[0].Ordered())

	assert.Empty(t, summaries[1].Timescale)
	assert.False(t, summaries[1].Ordered())
	assert.Len(t, summaries[1].Sections, 2)

	summaries, err = Inspect(context.Background(), []string{a}, Options{}, false)
	require.NoError(t, err)
	assert.Nil(t, summaries[0].Sections)
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyGCD, "gcd": PolicyGCD, "STRICT": PolicyStrict} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("lcm")
	assert.Error(t, err)
}
