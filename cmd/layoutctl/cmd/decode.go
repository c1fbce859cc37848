package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-drive-bridge/internal/can"
	"github.com/kstaniek/go-drive-bridge/internal/layout"
)

func newDecodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decode [candump-frame...]",
		Short: "Decode candump frames (e.g. 501#000010C00000C03F) into commands",
		Long: `Decode candump frames into commands. Frames are taken from the
arguments, or read one per line from stdin when none are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			decodeOne := func(s string) {
				line, ok := decodeLine(opts.codec, s)
				fmt.Fprintln(out, line)
				if !ok {
					failed++
				}
			}
			if len(args) > 0 {
				for _, a := range args {
					decodeOne(a)
				}
			} else if err := eachLine(cmd.InOrStdin(), decodeOne); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d frame(s) did not decode", failed)
			}
			return nil
		},
	}
}

// decodeLine decodes one candump frame and renders the result line. The
// boolean reports success.
func decodeLine(codec *layout.Codec, s string) (string, bool) {
	fr, err := can.Parse(s)
	if err != nil {
		return red("%s: %v", s, err), false
	}
	cmd, err := codec.Decode(fr)
	if err != nil {
		return red("%s: %s: %v", fr, layout.Reason(err), err), false
	}
	return fmt.Sprintf("%s %s %s", cyan("%s", fr), green("%s", cmd.Kind()), formatValues(cmd)), true
}

func eachLine(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(line)
	}
	return sc.Err()
}
