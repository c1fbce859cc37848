package layout

import (
	"errors"

	"github.com/kstaniek/go-drive-bridge/internal/can"
)

// Sentinel errors; decode and construction errors wrap one of these.
var (
	ErrUnknownIdentifier = errors.New("layout: unknown identifier")
	ErrMalformedLength   = errors.New("layout: malformed length")
	ErrRemoteRequest     = errors.New("layout: remote request frame")
	ErrReservedBits      = errors.New("layout: reserved bytes not zero")
	ErrDuplicateID       = errors.New("layout: duplicate identifier")
	ErrUnknownKind       = errors.New("layout: unknown command kind")
	ErrUnknownField      = errors.New("layout: unknown field")
	ErrFieldRange        = errors.New("layout: field value out of float32 range")

	// ErrOutOfRangeIdentifier is returned when a configured base pushes a
	// command identifier past the 11-bit standard range.
	ErrOutOfRangeIdentifier = can.ErrIDOutOfRange
)

// Reason maps a decode error to a short stable label (metrics, logs).
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownIdentifier):
		return "unknown_id"
	case errors.Is(err, ErrMalformedLength):
		return "bad_length"
	case errors.Is(err, ErrRemoteRequest):
		return "remote"
	case errors.Is(err, ErrReservedBits):
		return "reserved"
	default:
		return "other"
	}
}
