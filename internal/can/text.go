package can

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned by Parse for text that is not in candump form.
var ErrSyntax = errors.New("can: bad frame syntax")

// String renders the frame the way candump/cansend do: "123#DEADBEEF",
// "1ABCDEFF#00", "123#R" for remote frames.
func (f Frame) String() string {
	var b strings.Builder
	if f.Extended {
		fmt.Fprintf(&b, "%08X#", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X#", f.ID)
	}
	if f.RTR {
		b.WriteByte('R')
		if f.Len > 0 {
			b.WriteString(strconv.Itoa(int(f.Len)))
		}
		return b.String()
	}
	n := int(f.Len)
	if n > MaxLen {
		n = MaxLen
	}
	b.WriteString(strings.ToUpper(hex.EncodeToString(f.Data[:n])))
	return b.String()
}

// Parse reads a frame in candump form. Ids written with more than three hex
// digits are extended. Dots between payload bytes are accepted.
func Parse(s string) (Frame, error) {
	var f Frame
	idPart, dataPart, ok := strings.Cut(strings.TrimSpace(s), "#")
	if !ok || idPart == "" {
		return f, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	id, err := strconv.ParseUint(idPart, 16, 32)
	if err != nil {
		return f, fmt.Errorf("%w: id %q", ErrSyntax, idPart)
	}
	extended := len(idPart) > 3
	if strings.HasPrefix(strings.ToUpper(dataPart), "R") {
		f.ID, f.Extended, f.RTR = uint32(id), extended, true
		if rest := dataPart[1:]; rest != "" {
			n, err := strconv.ParseUint(rest, 10, 8)
			if err != nil {
				return Frame{}, fmt.Errorf("%w: rtr length %q", ErrSyntax, rest)
			}
			if n > MaxLen {
				return Frame{}, fmt.Errorf("%w (%d)", ErrInvalidLength, n)
			}
			f.Len = uint8(n)
		}
		if err := f.Validate(); err != nil {
			return Frame{}, err
		}
		return f, nil
	}
	data, err := hex.DecodeString(strings.ReplaceAll(dataPart, ".", ""))
	if err != nil {
		return f, fmt.Errorf("%w: payload %q", ErrSyntax, dataPart)
	}
	return New(uint32(id), extended, data)
}
