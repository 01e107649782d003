package farm

import (
	"fmt"

	"github.com/pattonkan/sui-go/sui"
)

// ParseAddress validates a Sui address and returns its canonical 0x-prefixed
// lowercase form, so that one wallet always maps to the same records.
func ParseAddress(s string) (Address, error) {
	addr, err := sui.AddressFromHex(s)
	if err != nil {
		return "", fmt.Errorf("%w: address %q: %v", ErrInvalidAddress, s, err)
	}
	return Address(addr.String()), nil
}
