package layout

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/kstaniek/go-drive-bridge/internal/can"
)

func sampleCommands() []Command {
	return []Command{
		DriveCmd{Current: 1.5, Velocity: -2.25},
		DriveCmd{Current: 0, Velocity: 0},
		DriveCmd{Current: 1, Velocity: 20000},
		PowerCmd{BusCurrent: 0.75},
		BusStateCmd{BusCurrent: -12.5, BusVoltage: 96.3},
		MotorVelCmd{CarVelocity: 27.8, MotorVelocity: 812.4},
		MotorVelCmd{CarVelocity: float32(math.Inf(1)), MotorVelocity: math.SmallestNonzeroFloat32},
	}
}

func TestLayoutCodec_RoundTrip(t *testing.T) {
	for _, c := range sampleCommands() {
		f := Encode(c)
		got, err := Decode(f)
		if err != nil {
			t.Fatalf("decode %#v: %v", c, err)
		}
		if got != c {
			t.Fatalf("roundtrip mismatch: got %#v want %#v", got, c)
		}
	}
}

func TestLayoutCodec_RoundTripNaNBits(t *testing.T) {
	nan := math.Float32frombits(0x7FC00123)
	f := Encode(BusStateCmd{BusVoltage: nan, BusCurrent: 1})
	got, err := Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bs := got.(BusStateCmd)
	if math.Float32bits(bs.BusVoltage) != 0x7FC00123 {
		t.Fatalf("NaN payload lost: %08X", math.Float32bits(bs.BusVoltage))
	}
}

func TestLayoutCodec_EncodeHeader(t *testing.T) {
	want := map[Kind]uint32{
		KindDrive:         0x501,
		KindPower:         0x502,
		KindBusState:      0x402,
		KindMotorVelocity: 0x403,
	}
	for _, c := range sampleCommands() {
		f := Encode(c)
		if f.ID != want[c.Kind()] {
			t.Fatalf("%s: id 0x%X want 0x%X", c.Kind(), f.ID, want[c.Kind()])
		}
		if f.Extended || f.RTR {
			t.Fatalf("%s: flags set: %+v", c.Kind(), f)
		}
		if f.Len != 8 {
			t.Fatalf("%s: len %d want 8", c.Kind(), f.Len)
		}
		if err := f.Validate(); err != nil {
			t.Fatalf("%s: invalid frame: %v", c.Kind(), err)
		}
	}
}

// The drive command payload is pinned so it stays identical across runs and hosts.
func TestLayoutCodec_DriveByteOrder(t *testing.T) {
	f := Encode(DriveCmd{Current: 1.5, Velocity: -2.25})
	want := []byte{0x00, 0x00, 0x10, 0xC0, 0x00, 0x00, 0xC0, 0x3F}
	if !bytes.Equal(f.Data[:], want) {
		t.Fatalf("payload % X want % X", f.Data[:], want)
	}
	if f.String() != "501#000010C00000C03F" {
		t.Fatalf("candump form %q", f.String())
	}
}

func TestLayoutCodec_PowerReservedZero(t *testing.T) {
	f := Encode(PowerCmd{BusCurrent: 1})
	if f.Uint32(0) != 0 {
		t.Fatalf("reserved word not zero: %08X", f.Uint32(0))
	}
	if f.Float32(4) != 1 {
		t.Fatalf("bus current at bytes 4..7: %v", f.Float32(4))
	}
}

func TestLayoutCodec_InverseRoundTrip(t *testing.T) {
	ids := []uint32{0x402, 0x403, 0x501, 0x502}
	payloads := [][8]byte{
		{},
		{0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x00, 0xC0},
		{0xFF, 0xFF, 0xFF, 0x7F, 0x01, 0x00, 0xC0, 0xFF},
	}
	for _, id := range ids {
		for _, p := range payloads {
			f := can.Frame{ID: id, Len: 8, Data: p}
			cmd, err := Decode(f)
			if err != nil {
				if errors.Is(err, ErrReservedBits) && id == 0x502 {
					continue
				}
				t.Fatalf("decode 0x%X % X: %v", id, p, err)
			}
			if got := Encode(cmd); got != f {
				t.Fatalf("inverse mismatch: got %v want %v", got, f)
			}
		}
	}
}

func TestLayoutCodec_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		f    can.Frame
		want error
	}{
		{"unknownID", can.Frame{ID: 0xFFF, Len: 8}, ErrUnknownIdentifier},
		{"unregisteredStd", can.Frame{ID: 0x123, Len: 8}, ErrUnknownIdentifier},
		{"extendedAlias", can.Frame{ID: 0x501, Extended: true, Len: 8}, ErrUnknownIdentifier},
		{"shortDrive", can.Frame{ID: 0x501, Len: 4}, ErrMalformedLength},
		{"emptyBusState", can.Frame{ID: 0x402, Len: 0}, ErrMalformedLength},
		{"len9", can.Frame{ID: 0x501, Len: 9}, ErrMalformedLength},
		{"remote", can.Frame{ID: 0x501, RTR: true}, ErrRemoteRequest},
		{"reserved", can.Frame{ID: 0x502, Len: 8, Data: [8]byte{1}}, ErrReservedBits},
	}
	for _, tc := range tests {
		cmd, err := Decode(tc.f)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, err)
		}
		if cmd != nil {
			t.Fatalf("%s: partial command returned: %#v", tc.name, cmd)
		}
	}
}

func TestLayoutCodec_CustomBases(t *testing.T) {
	c, err := New(WithDriverBase(0x600), WithMotorBase(0x200))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f := c.Encode(DriveCmd{Current: 0.5, Velocity: 100})
	if f.ID != 0x601 {
		t.Fatalf("id 0x%X want 0x601", f.ID)
	}
	if _, err := Decode(f); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("default codec must not know 0x601: %v", err)
	}
	got, err := c.Decode(f)
	if err != nil || got != (DriveCmd{Current: 0.5, Velocity: 100}) {
		t.Fatalf("custom decode: %#v %v", got, err)
	}
	if k, ok := c.KindOf(0x203); !ok || k != KindMotorVelocity {
		t.Fatalf("KindOf(0x203) = %v %v", k, ok)
	}
}

func TestLayoutCodec_NewErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want error
	}{
		{"driverTooHigh", []Option{WithDriverBase(0x7FE)}, ErrOutOfRangeIdentifier},
		{"motorTooHigh", []Option{WithMotorBase(0x800)}, ErrOutOfRangeIdentifier},
		{"wrap", []Option{WithDriverBase(math.MaxUint32)}, ErrOutOfRangeIdentifier},
		{"overlap", []Option{WithDriverBase(0x400), WithMotorBase(0x400)}, ErrDuplicateID},
	}
	for _, tc := range tests {
		if _, err := New(tc.opts...); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, err)
		}
	}
	if _, err := New(WithDriverBase(0x7FC)); err != nil {
		t.Fatalf("0x7FC base keeps ids within 11 bits: %v", err)
	}
}

func TestReason(t *testing.T) {
	_, err := Decode(can.Frame{ID: 0xFFF, Len: 8})
	if Reason(err) != "unknown_id" {
		t.Fatalf("reason %q", Reason(err))
	}
	_, err = Decode(can.Frame{ID: 0x501, Len: 4})
	if Reason(err) != "bad_length" {
		t.Fatalf("reason %q", Reason(err))
	}
	if Reason(nil) != "" {
		t.Fatalf("nil reason")
	}
}
