// Package layout maps typed drive-system commands onto classic CAN frames.
//
// Every command occupies a fixed 8-byte payload made of two little-endian
// IEEE-754 float32 words. Identifiers are derived from two configurable bases:
// the driver-controls base (commands sent to the motor controller) and the
// motor-controller base (measurements it broadcasts).
package layout

import "fmt"

// Kind names a command variant.
type Kind uint8

const (
	KindDrive Kind = iota + 1
	KindPower
	KindBusState
	KindMotorVelocity
)

var kindNames = map[Kind]string{
	KindDrive:         "drive",
	KindPower:         "power",
	KindBusState:      "bus_state",
	KindMotorVelocity: "motor_velocity",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Kinds lists every variant, motor-controller broadcasts first.
func Kinds() []Kind { return []Kind{KindBusState, KindMotorVelocity, KindDrive, KindPower} }

// Command is one of DriveCmd, PowerCmd, BusStateCmd or MotorVelCmd.
// The set is closed; values are plain comparable structs.
type Command interface {
	Kind() Kind
	values() []float32
}

// DriveCmd sets motor current (fraction of max, 0..1) and the velocity
// setpoint (rpm) the controller drives towards.
type DriveCmd struct {
	Current  float32
	Velocity float32
}

// PowerCmd limits the DC bus current (fraction of max, 0..1).
type PowerCmd struct {
	BusCurrent float32
}

// BusStateCmd reports DC bus voltage (V) and current (A).
type BusStateCmd struct {
	BusCurrent float32
	BusVoltage float32
}

// MotorVelCmd reports vehicle velocity (m/s) and motor velocity (rpm).
type MotorVelCmd struct {
	CarVelocity   float32
	MotorVelocity float32
}

func (DriveCmd) Kind() Kind    { return KindDrive }
func (PowerCmd) Kind() Kind    { return KindPower }
func (BusStateCmd) Kind() Kind { return KindBusState }
func (MotorVelCmd) Kind() Kind { return KindMotorVelocity }

// values returns the field values in the order of the kind's field table.
func (c DriveCmd) values() []float32    { return []float32{c.Velocity, c.Current} }
func (c PowerCmd) values() []float32    { return []float32{c.BusCurrent} }
func (c BusStateCmd) values() []float32 { return []float32{c.BusVoltage, c.BusCurrent} }
func (c MotorVelCmd) values() []float32 { return []float32{c.MotorVelocity, c.CarVelocity} }

// fromValues rebuilds a command of kind k from values in field-table order.
func fromValues(k Kind, v []float32) Command {
	switch k {
	case KindDrive:
		return DriveCmd{Velocity: v[0], Current: v[1]}
	case KindPower:
		return PowerCmd{BusCurrent: v[0]}
	case KindBusState:
		return BusStateCmd{BusVoltage: v[0], BusCurrent: v[1]}
	case KindMotorVelocity:
		return MotorVelCmd{MotorVelocity: v[0], CarVelocity: v[1]}
	}
	return nil
}
