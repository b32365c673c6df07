package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"vcdmerge/internal/pipeline"
)

var (
	inspectBody   bool
	inspectFormat string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <input>...",
	Short: "Show the header summary of traces",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(inspectFormat)
		switch format {
		case "pretty", "json":
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", inspectFormat)
		}
		opts, err := mergeOptions(cmd, activeConfig)
		if err != nil {
			return err
		}
		summaries, err := pipeline.Inspect(cmd.Context(), args, opts, inspectBody)
		if err != nil {
			return err
		}
		if format == "json" {
			return renderInspectJSON(cmd.OutOrStdout(), summaries)
		}
		renderInspectPretty(cmd.OutOrStdout(), summaries)
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectBody, "body", false, "also scan the body for out-of-order sections")
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "pretty", "output format (pretty|json)")
}

type inspectPayload struct {
	Path      string   `json:"path"`
	Size      int64    `json:"size"`
	Date      string   `json:"date,omitempty"`
	Version   string   `json:"version,omitempty"`
	Timescale string   `json:"timescale,omitempty"`
	Scopes    int      `json:"scopes"`
	Vars      int      `json:"vars"`
	Sections  *int     `json:"sections,omitempty"`
	Starts    []uint64 `json:"section_starts,omitempty"`
}

func renderInspectJSON(out io.Writer, summaries []pipeline.Summary) error {
	payload := make([]inspectPayload, len(summaries))
	for i, s := range summaries {
		payload[i] = inspectPayload{
			Path:      s.Path,
			Size:      s.Size,
			Date:      s.Date,
			Version:   s.Version,
			Timescale: s.Timescale,
			Scopes:    s.Scopes,
			Vars:      s.Vars,
		}
		if s.Sections != nil {
			n := len(s.Sections)
			payload[i].Sections = &n
			for _, sec := range s.Sections {
				payload[i].Starts = append(payload[i].Starts, sec.Start)
			}
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func renderInspectPretty(out io.Writer, summaries []pipeline.Summary) {
	p := message.NewPrinter(language.English)
	bold := color.New(color.Bold)
	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(out)
		}
		bold.Fprintln(out, s.Path)
		if s.Size >= 0 {
			p.Fprintf(out, "  size:      %d bytes\n", s.Size)
		}
		fmt.Fprintf(out, "  timescale: %s\n", valueOrNone(s.Timescale))
		if s.Date != "" {
			fmt.Fprintf(out, "  date:      %s\n", s.Date)
		}
		if s.Version != "" {
			fmt.Fprintf(out, "  version:   %s\n", s.Version)
		}
		p.Fprintf(out, "  scopes:    %d\n", s.Scopes)
		p.Fprintf(out, "  signals:   %d\n", s.Vars)
		if s.Sections != nil {
			if s.Ordered() {
				fmt.Fprintf(out, "  body:      %s\n", color.GreenString("ordered"))
			} else {
				p.Fprintf(out, "  body:      %s, %d sections (merge with --reorder)\n",
					color.YellowString("out of order"), len(s.Sections))
			}
		}
	}
}

func valueOrNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
