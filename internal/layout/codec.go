package layout

import (
	"fmt"

	"github.com/kstaniek/go-drive-bridge/internal/can"
)

// Default identifier bases.
const (
	DefaultDriverBase = 0x500
	DefaultMotorBase  = 0x400
)

// Codec converts commands to frames and back. Immutable after New and safe
// for concurrent use.
type Codec struct {
	driverBase uint32
	motorBase  uint32
	ids        map[Kind]uint32
	byID       map[uint32]Kind
}

type Option func(*Codec)

// WithDriverBase sets the identifier base of driver-controls commands.
func WithDriverBase(base uint32) Option { return func(c *Codec) { c.driverBase = base } }

// WithMotorBase sets the identifier base of motor-controller broadcasts.
func WithMotorBase(base uint32) Option { return func(c *Codec) { c.motorBase = base } }

// New builds a codec. Every derived identifier must be a valid standard
// (11-bit) id and unique across kinds.
func New(opts ...Option) (*Codec, error) {
	c := &Codec{
		driverBase: DefaultDriverBase,
		motorBase:  DefaultMotorBase,
		ids:        make(map[Kind]uint32, len(layouts)),
		byID:       make(map[uint32]Kind, len(layouts)),
	}
	for _, o := range opts {
		o(c)
	}
	for _, k := range Kinds() {
		l := layouts[k]
		base := c.driverBase
		if l.Base == BaseMotor {
			base = c.motorBase
		}
		id := base + l.Offset
		if id < base { // wrapped
			return nil, fmt.Errorf("layout %s: %w (base 0x%X)", k, ErrOutOfRangeIdentifier, base)
		}
		if err := can.ValidateID(id, false); err != nil {
			return nil, fmt.Errorf("layout %s: %w", k, err)
		}
		if other, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("%w: 0x%03X used by %s and %s", ErrDuplicateID, id, other, k)
		}
		c.ids[k] = id
		c.byID[id] = k
	}
	return c, nil
}

// Default uses the default bases.
var Default = mustNew()

func mustNew() *Codec {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// DriverBase returns the configured driver-controls base.
func (c *Codec) DriverBase() uint32 { return c.driverBase }

// MotorBase returns the configured motor-controller base.
func (c *Codec) MotorBase() uint32 { return c.motorBase }

// ID returns the frame identifier assigned to k (0 for unknown kinds).
func (c *Codec) ID(k Kind) uint32 { return c.ids[k] }

// KindOf reports which kind an identifier belongs to.
func (c *Codec) KindOf(id uint32) (Kind, bool) {
	k, ok := c.byID[id]
	return k, ok
}

// Encode packs cmd into a standard data frame. It cannot fail: identifiers
// were validated by New and every float32 has a byte representation.
func (c *Codec) Encode(cmd Command) can.Frame {
	k := cmd.Kind()
	l := layouts[k]
	f := can.Frame{ID: c.ids[k], Len: l.Len}
	for i, v := range cmd.values() {
		f.SetFloat32(l.Fields[i].Offset, v)
	}
	return f
}

// Decode unpacks a frame. On error the returned command is nil.
func (c *Codec) Decode(f can.Frame) (Command, error) {
	if f.Len > can.MaxLen {
		return nil, fmt.Errorf("layout decode id 0x%X: %w (%d > %d)", f.ID, ErrMalformedLength, f.Len, can.MaxLen)
	}
	k, ok := c.byID[f.ID]
	if !ok || f.Extended {
		return nil, fmt.Errorf("layout decode: %w (%s)", ErrUnknownIdentifier, idString(f))
	}
	if f.RTR {
		return nil, fmt.Errorf("layout decode %s: %w", k, ErrRemoteRequest)
	}
	l := layouts[k]
	if f.Len != l.Len {
		return nil, fmt.Errorf("layout decode %s: %w (got %d want %d)", k, ErrMalformedLength, f.Len, l.Len)
	}
	for _, r := range l.Reserved {
		for _, b := range f.Data[r.Offset : r.Offset+r.Width] {
			if b != 0 {
				return nil, fmt.Errorf("layout decode %s: %w (bytes %d..%d)", k, ErrReservedBits, r.Offset, r.Offset+r.Width-1)
			}
		}
	}
	vals := make([]float32, len(l.Fields))
	for i, fd := range l.Fields {
		vals[i] = f.Float32(fd.Offset)
	}
	return fromValues(k, vals), nil
}

func idString(f can.Frame) string {
	if f.Extended {
		return fmt.Sprintf("ext 0x%08X", f.ID)
	}
	return fmt.Sprintf("0x%03X", f.ID)
}

// Encode packs cmd with the default codec.
func Encode(cmd Command) can.Frame { return Default.Encode(cmd) }

// Decode unpacks f with the default codec.
func Decode(f can.Frame) (Command, error) { return Default.Decode(f) }
