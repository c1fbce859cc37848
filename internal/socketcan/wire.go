package socketcan

import (
	"encoding/binary"
	"fmt"

	"github.com/kstaniek/go-drive-bridge/internal/can"
)

// frameSize is sizeof(struct can_frame), the classic CAN MTU.
const frameSize = 16

// struct can_frame (linux/can.h):
//
//	can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
//	can_dlc u8    [4]
//	pad     3B    [5:8]
//	data    [8]   [8:16]
//
// The kernel uses host byte order; every supported target is little-endian.

func marshalFrame(fr can.Frame) [frameSize]byte {
	var buf [frameSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], fr.RawID())
	buf[4] = fr.Len
	copy(buf[8:], fr.Data[:])
	return buf
}

func unmarshalFrame(buf []byte) (can.Frame, error) {
	if len(buf) != frameSize {
		return can.Frame{}, fmt.Errorf("short read: %d", len(buf))
	}
	raw := binary.LittleEndian.Uint32(buf[0:4])
	if raw&can.CAN_ERR_FLAG != 0 {
		return can.Frame{}, fmt.Errorf("%w: 0x%08X", ErrErrorFrame, raw)
	}
	return can.FromRaw(raw, buf[4], buf[8:16])
}
