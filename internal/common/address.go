package common

import (
	"fmt"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Address wraps go-ethereum's Address so configuration files can carry hex
// addresses in YAML as well as TOML and JSON. The embedded type already
// handles text and JSON decoding; yaml.v3 needs the explicit hook.
type Address struct {
	gethcommon.Address
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		a.Address = gethcommon.Address{}
		return nil
	}
	if !gethcommon.IsHexAddress(s) {
		return fmt.Errorf("invalid address %q", s)
	}
	a.Address = gethcommon.HexToAddress(s)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (a Address) MarshalYAML() (any, error) {
	return a.Hex(), nil
}
