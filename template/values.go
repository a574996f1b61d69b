package template

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Int is a 64-bit template integer. It accepts decimal, 0x hex, 0o octal and
// 0b binary literals, with optional underscores and sign. Unsigned literals
// above MaxInt64 are kept as their two's complement pattern, so 0xFFFFFFFFFFFFFFFF
// reads as -1.
type Int int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (i *Int) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an integer", n.Line)
	}
	v, err := ParseInt(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*i = Int(v)
	return nil
}

// ParseInt parses a template integer literal.
func ParseInt(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int64(u), nil
}

// Uint is an unsigned 64-bit template integer (biases, seeds, counts).
type Uint uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (u *Uint) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an unsigned integer", n.Line)
	}
	v, err := strconv.ParseUint(n.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid unsigned integer %q", n.Line, n.Value)
	}
	*u = Uint(v)
	return nil
}

// Ops is a list of operation names written either as a single scalar
// ("trailer: nop") or as a sequence.
type Ops []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Ops) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "" {
			*o = nil
			return nil
		}
		*o = Ops{n.Value}
		return nil
	case yaml.SequenceNode:
		var ops []string
		if err := n.Decode(&ops); err != nil {
			return err
		}
		*o = ops
		return nil
	}
	return fmt.Errorf("line %d: expected an operation or a list of operations", n.Line)
}
