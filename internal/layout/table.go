package layout

import "slices"

// Base selects which identifier base a command is addressed from.
type Base uint8

const (
	BaseDriver Base = iota // driver controls -> motor controller
	BaseMotor              // motor controller broadcasts
)

func (b Base) String() string {
	if b == BaseMotor {
		return "motor"
	}
	return "driver"
}

// Field is one float32 value inside the payload.
type Field struct {
	Name   string
	Offset int // first payload byte
	Width  int // bytes; always 4 (IEEE-754 binary32, little-endian)
}

// Span is a reserved byte range that must be transmitted as zero.
type Span struct {
	Offset int
	Width  int
}

// Layout is the wire description of one command kind.
type Layout struct {
	Kind     Kind
	Base     Base
	Offset   uint32 // added to the base to form the identifier
	Len      uint8
	Fields   []Field
	Reserved []Span
}

const float32Width = 4

// layouts follows the Tritium WaveSculptor message map: two little-endian
// float32 words per frame.
var layouts = map[Kind]Layout{
	KindDrive: {
		Kind: KindDrive, Base: BaseDriver, Offset: 0x01, Len: 8,
		Fields: []Field{{"velocity", 0, float32Width}, {"current", 4, float32Width}},
	},
	KindPower: {
		Kind: KindPower, Base: BaseDriver, Offset: 0x02, Len: 8,
		Fields:   []Field{{"bus_current", 4, float32Width}},
		Reserved: []Span{{0, 4}},
	},
	KindBusState: {
		Kind: KindBusState, Base: BaseMotor, Offset: 0x02, Len: 8,
		Fields: []Field{{"bus_voltage", 0, float32Width}, {"bus_current", 4, float32Width}},
	},
	KindMotorVelocity: {
		Kind: KindMotorVelocity, Base: BaseMotor, Offset: 0x03, Len: 8,
		Fields: []Field{{"motor_velocity", 0, float32Width}, {"car_velocity", 4, float32Width}},
	},
}

// Lookup returns a copy of the layout for k.
func Lookup(k Kind) (Layout, bool) {
	l, ok := layouts[k]
	return l.clone(), ok
}

// clone detaches the slices from the package table so callers cannot
// rewrite the wire layout.
func (l Layout) clone() Layout {
	l.Fields = slices.Clone(l.Fields)
	l.Reserved = slices.Clone(l.Reserved)
	return l
}
