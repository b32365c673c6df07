package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vcdmerge/internal/idmap"
)

var idmapInput string

var idmapCmd = &cobra.Command{
	Use:   "idmap <map> [identifier...]",
	Short: "Show where the signals of a merged trace came from",
	Long: `idmap reads a file written by "vcdmerge --idmap". Without identifiers it
lists every input and its renamed declarations; with identifiers it shows the
origin of each one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := idmap.Read(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			return renderIDMap(out, m, idmapInput)
		}
		missing := 0
		for _, id := range args[1:] {
			located := m.Lookup(id)
			if len(located) == 0 {
				fmt.Fprintf(out, "%s\t%s\n", id, color.RedString("not declared"))
				missing++
				continue
			}
			for _, l := range located {
				fmt.Fprintf(out, "%s\t%s: %s (was %s)\n", id, l.Input.Path, qualified(l.Entry), l.Entry.Orig)
			}
		}
		if missing > 0 {
			return fmt.Errorf("%d identifiers not found in %s", missing, args[0])
		}
		return nil
	},
}

func init() {
	idmapCmd.Flags().StringVar(&idmapInput, "input", "", "only list the input with this label or path")
}

func renderIDMap(out io.Writer, m *idmap.Map, only string) error {
	fmt.Fprintf(out, "output %s, written %s\n", m.Output, m.Created.Format("2006-01-02 15:04:05 MST"))
	shown := 0
	for _, in := range m.Inputs {
		if only != "" && only != in.Label && only != in.Path {
			continue
		}
		shown++
		fmt.Fprintf(out, "\n%s %s (fingerprint %016x)\n", color.New(color.Bold).Sprint(in.Label), in.Path, in.Fingerprint)
		for _, e := range in.Entries {
			fmt.Fprintf(out, "  %-6s <- %-6s %s\n", e.New, e.Orig, qualified(e))
		}
	}
	if only != "" && shown == 0 {
		return fmt.Errorf("no input %q in identifier map", only)
	}
	return nil
}

func qualified(e idmap.Entry) string {
	if e.Scope == "" {
		return e.Ref
	}
	return e.Scope + "." + e.Ref
}
