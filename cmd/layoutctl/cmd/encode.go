package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-drive-bridge/internal/layout"
)

func newEncodeCmd(opts *options) *cobra.Command {
	var hexBytes bool
	enc := &cobra.Command{
		Use:   "encode",
		Short: "Encode a command into a candump frame",
	}
	enc.PersistentFlags().BoolVar(&hexBytes, "bytes", false, "also print the payload bytes")
	for _, k := range layout.Kinds() {
		enc.AddCommand(newEncodeKindCmd(opts, k, &hexBytes))
	}
	return enc
}

// newEncodeKindCmd builds "encode <kind>" with one float flag per field.
func newEncodeKindCmd(opts *options, k layout.Kind, hexBytes *bool) *cobra.Command {
	l, _ := layout.Lookup(k)
	names := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		names[i] = "--" + f.Name
	}
	c := &cobra.Command{
		Use:   k.String(),
		Short: fmt.Sprintf("Encode a %s command (%s)", k, strings.Join(names, ", ")),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]float64{}
			for _, f := range l.Fields {
				if !cmd.Flags().Changed(f.Name) {
					continue
				}
				v, err := cmd.Flags().GetFloat64(f.Name)
				if err != nil {
					return err
				}
				fields[f.Name] = v
			}
			command, err := layout.Build(k, fields)
			if err != nil {
				return err
			}
			fr := opts.codec.Encode(command)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, green("%s", fr.String()))
			if *hexBytes {
				fmt.Fprintln(out, yellow("% X", fr.Payload()))
			}
			return nil
		},
	}
	for _, f := range l.Fields {
		c.Flags().Float64(f.Name, 0, fmt.Sprintf("%s (float32, bytes %d-%d)", f.Name, f.Offset, f.Offset+f.Width-1))
	}
	return c
}
