// Package cmd implements the layoutctl commands: offline encoding and
// decoding of drive command frames in candump text form.
package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kstaniek/go-drive-bridge/internal/layout"
)

var (
	yellow = color.New(color.FgHiYellow).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
	cyan   = color.New(color.FgCyan).SprintfFunc()
)

type options struct {
	driverBase string
	motorBase  string
	codec      *layout.Codec
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "layoutctl",
		Short:         "Encode and decode drive command CAN frames",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			driver, err := parseBase(opts.driverBase)
			if err != nil {
				return fmt.Errorf("--driver-base: %w", err)
			}
			motor, err := parseBase(opts.motorBase)
			if err != nil {
				return fmt.Errorf("--motor-base: %w", err)
			}
			opts.codec, err = layout.New(layout.WithDriverBase(driver), layout.WithMotorBase(motor))
			return err
		},
	}
	root.PersistentFlags().StringVar(&opts.driverBase, "driver-base", fmt.Sprintf("0x%X", layout.DefaultDriverBase), "identifier base of driver controls")
	root.PersistentFlags().StringVar(&opts.motorBase, "motor-base", fmt.Sprintf("0x%X", layout.DefaultMotorBase), "identifier base of motor controller broadcasts")
	root.AddCommand(newEncodeCmd(opts), newDecodeCmd(opts), newLayoutsCmd(opts))
	return root
}

func parseBase(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// formatValues renders fields as name=value pairs in payload order.
func formatValues(cmd layout.Command) string {
	vals := layout.Values(cmd)
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.Name + "=" + strconv.FormatFloat(float64(v.Value), 'g', -1, 32)
	}
	return strings.Join(parts, " ")
}
