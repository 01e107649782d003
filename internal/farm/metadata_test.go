package farm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetMetadata(t *testing.T) {
	e := NewEngine(newMemLedger())

	require.NoError(t, e.SetMetadata("0xb0b", "0xb0b", "0x"+strings.Repeat("ab", 20), 5))
	evs := e.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, EventMetadataChanged, evs[0].Type)
	assert.Equal(t, Address("0xb0b"), evs[0].Wallet)

	err := e.SetMetadata("0xeve", "0xb0b", "x", 5)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = e.SetMetadata("0xb0b", "0xb0b", strings.Repeat("a", MaxMetadataLength+1), 5)
	assert.ErrorIs(t, err, ErrMetadataTooLong)
	assert.Empty(t, e.Events())
}
