package farm

import "fmt"

// MaxMetadataLength fits a 0x-prefixed 20-byte hex address.
const MaxMetadataLength = 42

// SetMetadata validates a wallet's metadata string. Only the wallet itself may
// change it; storing the value is left to the caller.
func (e *Engine) SetMetadata(caller, wallet Address, value string, now int64) error {
	if caller != wallet {
		return fmt.Errorf("%w: %s cannot set metadata of %s", ErrUnauthorized, caller, wallet)
	}
	if len(value) > MaxMetadataLength {
		return fmt.Errorf("%w: %d bytes, at most %d", ErrMetadataTooLong, len(value), MaxMetadataLength)
	}
	ev := newEvent(EventMetadataChanged, now, 0, wallet)
	ev.Attrs = map[string]string{"value": value}
	e.emit(ev)
	return nil
}
