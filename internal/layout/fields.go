package layout

import (
	"fmt"
	"math"
	"sort"
)

// Value is a named field of a command.
type Value struct {
	Name  string
	Value float32
}

// Values lists the fields of cmd in payload order.
func Values(cmd Command) []Value {
	l := layouts[cmd.Kind()]
	vals := cmd.values()
	out := make([]Value, len(vals))
	for i, v := range vals {
		out[i] = Value{Name: l.Fields[i].Name, Value: v}
	}
	return out
}

// Build constructs a command of kind k from named fields. Missing fields are
// zero; unknown names and values a float32 cannot hold are rejected.
func Build(k Kind, fields map[string]float64) (Command, error) {
	l, ok := layouts[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	vals := make([]float32, len(l.Fields))
	used := 0
	for i, fd := range l.Fields {
		if v, ok := fields[fd.Name]; ok {
			if math.Abs(v) > math.MaxFloat32 {
				return nil, fmt.Errorf("%w: %s.%s=%g", ErrFieldRange, k, fd.Name, v)
			}
			vals[i] = float32(v)
			used++
		}
	}
	if used != len(fields) {
		var unknown []string
		for name := range fields {
			if !hasField(l, name) {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w for %s: %v", ErrUnknownField, k, unknown)
	}
	return fromValues(k, vals), nil
}

func hasField(l Layout, name string) bool {
	for _, fd := range l.Fields {
		if fd.Name == name {
			return true
		}
	}
	return false
}

// Entry is one row of the identifier table of a codec.
type Entry struct {
	Layout
	ID uint32
}

// Describe returns the codec's identifier table in identifier order.
func (c *Codec) Describe() []Entry {
	out := make([]Entry, 0, len(c.ids))
	for _, k := range Kinds() {
		out = append(out, Entry{Layout: layouts[k].clone(), ID: c.ids[k]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
