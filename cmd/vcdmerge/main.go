package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vcdmerge/internal/config"
	"vcdmerge/internal/idcode"
	"vcdmerge/internal/pipeline"
	"vcdmerge/internal/vcd"
	"vcdmerge/internal/version"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitMalformed = 2
	exitExhausted = 3
	exitTimescale = 4
)

var rootCmd = &cobra.Command{
	Use:   "vcdmerge <input>... <output>",
	Short: "Merge VCD waveform traces into one",
	Long: `vcdmerge combines several Value Change Dump traces into a single trace.
Every input keeps its own scope tree under a root scope of its own, and
signal identifiers are reassigned so that they never collide. Value changes
are interleaved in time order while the inputs are streamed, so traces of any
length can be merged. Use "-" as the output to write to standard output.`,
	Args:              cobra.MinimumNArgs(2),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: prepare,
	RunE:              runMerge,
}

var (
	// activeConfig is the configuration file in effect for this run.
	activeConfig = config.Default()
	cleanups     []func()
)

// main runs the command under a context that is cancelled on SIGINT or
// SIGTERM and maps the error to an exit code.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	runCleanups()

	if err != nil {
		printError(err)
	}
	os.Exit(exitCode(err))
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(idmapCmd)
	rootCmd.AddCommand(versionCmd)

	addMergeFlags(rootCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "configuration file (default: nearest vcdmerge.toml or vcdmerge.yaml)")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.Bool("timings", false, "show timing information")
	flags.String("ui", "", "progress display (auto|on|off)")

	flags.String("trace", "", "write trace events to file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept in ring mode")
	flags.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval")

	flags.String("cpu-profile", "", "write CPU profile to file")
	flags.String("mem-profile", "", "write heap profile to file")
	flags.String("runtime-trace", "", "write runtime execution trace to file")
}

// prepare runs before every command: colors, configuration, tracing and
// profiling.
func prepare(cmd *cobra.Command, _ []string) error {
	if err := setupColor(cmd); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	activeConfig = cfg

	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, cleanup)

	cleanup, err = setupProfiling(cmd)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, cleanup)
	return nil
}

func runCleanups() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
}

func setupColor(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto", "":
		color.NoColor = !isTerminal(os.Stderr)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

// exitCode classifies err.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, idcode.ErrExhausted):
		return exitExhausted
	case errors.Is(err, pipeline.ErrTimescaleMismatch):
		return exitTimescale
	case errors.Is(err, vcd.ErrMalformed):
		return exitMalformed
	default:
		return exitFailure
	}
}

func printError(err error) {
	prefix := color.New(color.FgRed, color.Bold).Sprint("error:")
	fmt.Fprintf(os.Stderr, "vcdmerge: %s %v\n", prefix, err)
}

// isTerminal reports whether f is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
