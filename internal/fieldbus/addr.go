package fieldbus

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Addr is an optional coil address. The zero value is unconfigured:
// writes to it are dropped by Link.WriteBit.
type Addr struct {
	n   uint16
	set bool
}

// At returns a configured address.
func At(n uint16) Addr {
	return Addr{n: n, set: true}
}

// Get returns the address and whether it is configured.
func (a Addr) Get() (uint16, bool) {
	return a.n, a.set
}

// IsSet reports whether the address is configured.
func (a Addr) IsSet() bool {
	return a.set
}

func (a Addr) String() string {
	if !a.set {
		return "-"
	}
	return strconv.Itoa(int(a.n))
}

// UnmarshalYAML accepts an integer address. A null value never reaches
// this method and leaves the address unconfigured.
func (a *Addr) UnmarshalYAML(node *yaml.Node) error {
	var n uint16
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("coil address: %w", err)
	}
	*a = At(n)
	return nil
}

// MarshalYAML writes unconfigured addresses as null.
func (a Addr) MarshalYAML() (any, error) {
	if !a.set {
		return nil, nil
	}
	return a.n, nil
}
