package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"vcdmerge/internal/config"
	"vcdmerge/internal/pipeline"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <input>... <output>",
	Short: "Merge traces (same as running vcdmerge without a command)",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runMerge,
}

func init() {
	addMergeFlags(mergeCmd)
}

func addMergeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Bool("reorder", false, "accept inputs whose timestamps go backwards (local files only)")
	flags.Int("prefetch", 0, "groups read ahead per input on a separate goroutine (0 disables)")
	flags.Int("jobs", 0, "headers parsed concurrently (0 = number of CPUs)")
	flags.String("timescale", "", "timescale policy for differing inputs (gcd|strict)")
	flags.String("label", "", "root scope name template, {index} and {name} are expanded")
	flags.StringArray("name", nil, "root scope name of the next input, repeat in input order")
	flags.Int("buffer-size", 0, "read and write buffer size in bytes")
	flags.String("date", "", "text of the $date directive of the output")
	flags.String("generator", "", "text of the $version directive of the output")
	flags.String("idmap", "", "write the identifier map to this file")
}

// mergeOptions combines the configuration file with the flags that were set
// explicitly on cmd.
func mergeOptions(cmd *cobra.Command, cfg config.Config) (pipeline.Options, error) {
	flags := cmd.Flags()
	m, out := cfg.Merge, cfg.Output

	var err error
	set := func(name string, get func(string) error) {
		if err == nil && flags.Changed(name) {
			err = get(name)
		}
	}
	set("reorder", func(n string) (e error) { m.Reorder, e = flags.GetBool(n); return })
	set("prefetch", func(n string) (e error) { m.Prefetch, e = flags.GetInt(n); return })
	set("jobs", func(n string) (e error) { m.Jobs, e = flags.GetInt(n); return })
	set("timescale", func(n string) (e error) { m.Timescale, e = flags.GetString(n); return })
	set("label", func(n string) (e error) { m.Label, e = flags.GetString(n); return })
	set("buffer-size", func(n string) (e error) { m.BufferSize, e = flags.GetInt(n); return })
	set("date", func(n string) (e error) { out.Date, e = flags.GetString(n); return })
	set("generator", func(n string) (e error) { out.Version, e = flags.GetString(n); return })
	set("idmap", func(n string) (e error) { out.IDMap, e = flags.GetString(n); return })
	if err != nil {
		return pipeline.Options{}, err
	}

	policy, err := pipeline.ParsePolicy(m.Timescale)
	if err != nil {
		return pipeline.Options{}, err
	}
	if m.Prefetch < 0 || m.Jobs < 0 || m.BufferSize < 0 {
		return pipeline.Options{}, fmt.Errorf("--prefetch, --jobs and --buffer-size must not be negative")
	}
	return pipeline.Options{
		Reorder:       m.Reorder,
		Prefetch:      m.Prefetch,
		Jobs:          m.Jobs,
		Timescale:     policy,
		LabelTemplate: m.Label,
		BufferSize:    m.BufferSize,
		Date:          out.Date,
		Version:       out.Version,
		IDMap:         out.IDMap,
	}, nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	inputs, output := args[:len(args)-1], args[len(args)-1]

	opts, err := mergeOptions(cmd, activeConfig)
	if err != nil {
		return err
	}
	labels, err := cmd.Flags().GetStringArray("name")
	if err != nil {
		return err
	}
	if len(labels) > len(inputs) {
		return fmt.Errorf("%d --name flags given for %d inputs", len(labels), len(inputs))
	}

	root := cmd.Root().PersistentFlags()
	quiet, _ := root.GetBool("quiet")
	showTimings, _ := root.GetBool("timings")
	modeValue := activeConfig.UI.Mode
	if root.Changed("ui") {
		modeValue, _ = root.GetString("ui")
	}
	mode, err := readUIMode(modeValue)
	if err != nil {
		return err
	}

	req := &pipeline.Request{
		Inputs:  inputs,
		Labels:  labels,
		Output:  output,
		Options: opts,
	}

	start := time.Now()
	var res *pipeline.Result
	if !quiet && shouldUseTUI(mode) {
		res, err = runMergeWithUI(cmd.Context(), "merging "+output, inputs, req)
	} else {
		if !quiet {
			req.Progress = newPhaseSink(cmd.ErrOrStderr())
		}
		res, err = pipeline.Merge(cmd.Context(), req)
	}
	if err != nil {
		return err
	}

	if !quiet {
		printSummary(cmd.ErrOrStderr(), res, time.Since(start))
	}
	if showTimings {
		printTimings(cmd.ErrOrStderr(), res.Timing)
	}
	return nil
}

// phaseSink prints one line when a merge phase starts.
type phaseSink struct {
	mu   sync.Mutex
	out  io.Writer
	seen map[pipeline.Stage]bool
}

func newPhaseSink(out io.Writer) *phaseSink {
	return &phaseSink{out: out, seen: make(map[pipeline.Stage]bool)}
}

func (s *phaseSink) OnEvent(ev pipeline.Event) {
	if ev.Status != pipeline.StatusWorking {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[ev.Stage] {
		return
	}
	s.seen[ev.Stage] = true
	label := map[pipeline.Stage]string{
		pipeline.StageHeaders:  "reading headers",
		pipeline.StageCompose:  "composing declarations",
		pipeline.StageSections: "scanning for out-of-order sections",
		pipeline.StageMerge:    "merging value changes",
	}[ev.Stage]
	if label != "" {
		fmt.Fprintf(s.out, "%s %s\n", color.CyanString("::"), label)
	}
}

func printSummary(out io.Writer, res *pipeline.Result, elapsed time.Duration) {
	p := message.NewPrinter(language.English)
	dest := res.Output
	if dest == pipeline.StdoutPath {
		dest = "standard output"
	}
	line := p.Sprintf("merged %d inputs (%d signals, %d groups, %d changes) into %s in %v",
		res.Inputs, res.Signals, res.Groups, res.Changes, dest, elapsed.Round(time.Millisecond))
	if res.Timescale != "" {
		line += " at " + res.Timescale
	}
	fmt.Fprintln(out, color.GreenString("done:"), line)
}
