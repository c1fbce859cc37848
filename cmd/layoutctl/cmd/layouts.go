package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-drive-bridge/internal/layout"
)

func newLayoutsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "layouts",
		Short: "Print the identifier and payload table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printLayouts(cmd.OutOrStdout(), opts.codec)
		},
	}
}

func printLayouts(w io.Writer, codec *layout.Codec) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tBASE\tLEN\tPAYLOAD")
	for _, e := range codec.Describe() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", yellow("0x%03X", e.ID), e.Kind, e.Base, e.Len, payloadMap(e.Layout))
	}
	return tw.Flush()
}

// payloadMap renders the byte ranges of a layout, e.g. "0-3:velocity 4-7:current".
func payloadMap(l layout.Layout) string {
	type span struct {
		off, width int
		name       string
	}
	spans := make([]span, 0, len(l.Fields)+len(l.Reserved))
	for _, r := range l.Reserved {
		spans = append(spans, span{r.Offset, r.Width, "reserved"})
	}
	for _, f := range l.Fields {
		spans = append(spans, span{f.Offset, f.Width, f.Name})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].off < spans[j].off })
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = fmt.Sprintf("%d-%d:%s", s.off, s.off+s.width-1, s.name)
	}
	return strings.Join(parts, " ")
}
