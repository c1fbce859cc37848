package can

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// MaxLen is the payload capacity of a classic CAN frame.
const MaxLen = 8

var (
	// ErrInvalidLength is returned when a frame length (DLC) is outside 0..8.
	ErrInvalidLength = errors.New("can: invalid length")
	// ErrIDOutOfRange is returned when an identifier does not fit 11 bits
	// (standard) or 29 bits (extended).
	ErrIDOutOfRange = errors.New("can: identifier out of range")
)

// Frame is a classic CAN frame.
//
// Data is the single backing store for the payload; the Uint64/Uint32/Uint16
// and Float32 accessors are little-endian views over the same bytes. Only the
// first Len bytes are meaningful on the bus.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool
	RTR      bool
	Len      uint8
	Data     [MaxLen]byte
}

// New builds a data frame and validates it.
func New(id uint32, extended bool, data []byte) (Frame, error) {
	var f Frame
	if len(data) > MaxLen {
		return f, fmt.Errorf("%w (%d)", ErrInvalidLength, len(data))
	}
	f.ID = id
	f.Extended = extended
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Validate checks the length and identifier width invariants.
func (f Frame) Validate() error {
	if f.Len > MaxLen {
		return fmt.Errorf("%w (%d)", ErrInvalidLength, f.Len)
	}
	return ValidateID(f.ID, f.Extended)
}

// ValidateID reports whether id fits the standard or extended id space.
func ValidateID(id uint32, extended bool) error {
	limit := uint32(CAN_SFF_MASK)
	if extended {
		limit = CAN_EFF_MASK
	}
	if id > limit {
		return fmt.Errorf("%w (0x%X > 0x%X)", ErrIDOutOfRange, id, limit)
	}
	return nil
}

// Payload returns the valid payload bytes (a copy).
func (f Frame) Payload() []byte {
	n := int(f.Len)
	if n > MaxLen {
		n = MaxLen
	}
	out := make([]byte, n)
	copy(out, f.Data[:n])
	return out
}

// RawID returns the identifier with SocketCAN EFF/RTR flags applied.
func (f Frame) RawID() uint32 {
	id := f.ID
	if f.Extended {
		id = (id & CAN_EFF_MASK) | CAN_EFF_FLAG
	} else {
		id &= CAN_SFF_MASK
	}
	if f.RTR {
		id |= CAN_RTR_FLAG
	}
	return id
}

// FromRaw builds a frame from a SocketCAN-style can_id, DLC and payload.
func FromRaw(raw uint32, n uint8, data []byte) (Frame, error) {
	var f Frame
	if n > MaxLen {
		return f, fmt.Errorf("%w (%d)", ErrInvalidLength, n)
	}
	f.Extended = raw&CAN_EFF_FLAG != 0
	f.RTR = raw&CAN_RTR_FLAG != 0
	if f.Extended {
		f.ID = raw & CAN_EFF_MASK
	} else {
		f.ID = raw & CAN_SFF_MASK
	}
	f.Len = n
	copy(f.Data[:n], data)
	return f, nil
}

// Uint64 reads the whole payload as one little-endian value.
func (f Frame) Uint64() uint64 { return binary.LittleEndian.Uint64(f.Data[:]) }

// Uint32 reads the i-th 32-bit word (0 = bytes 0..3, 1 = bytes 4..7).
func (f Frame) Uint32(i int) uint32 { return binary.LittleEndian.Uint32(f.Data[i*4:]) }

// Uint16 reads the i-th 16-bit word (0..3).
func (f Frame) Uint16(i int) uint16 { return binary.LittleEndian.Uint16(f.Data[i*2:]) }

// Float32 reads IEEE-754 binary32 at byte offset off.
func (f Frame) Float32(off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(f.Data[off:]))
}

func (f *Frame) SetUint64(v uint64)        { binary.LittleEndian.PutUint64(f.Data[:], v) }
func (f *Frame) SetUint32(i int, v uint32) { binary.LittleEndian.PutUint32(f.Data[i*4:], v) }
func (f *Frame) SetUint16(i int, v uint16) { binary.LittleEndian.PutUint16(f.Data[i*2:], v) }

// SetFloat32 writes v at byte offset off.
func (f *Frame) SetFloat32(off int, v float32) {
	binary.LittleEndian.PutUint32(f.Data[off:], math.Float32bits(v))
}
