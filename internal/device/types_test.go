package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropertyStringAndParse(t *testing.T) {
	p := ParseProperties("read, Notify,bogus")

	assert.True(t, p.Has(PropRead))
	assert.True(t, p.Has(PropNotify))
	assert.False(t, p.Has(PropWrite))
	assert.Equal(t, "read,notify", p.String())
	assert.Equal(t, "", Property(0).String())
}

func TestCorrelationErrorMatchesByReason(t *testing.T) {
	cause := errors.New("deadline")
	err := fmt.Errorf("connect: %w", &CorrelationError{Reason: ReasonCancelled, Key: "connect:P1", Cause: cause})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, cause, "cause MUST stay in the chain")
	assert.NotErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, "connect: cancelled: connect:P1: deadline", err.Error())
}

func TestHardwareErrorKeepsCollaboratorError(t *testing.T) {
	assert.Nil(t, NewHardwareError("read", "c1", nil))

	inner := fmt.Errorf("%w: gatt link dropped", ErrNotConnected)
	err := NewHardwareError("read", "c1", inner)

	var hw *HardwareError
	assert.ErrorAs(t, err, &hw)
	assert.Equal(t, "read", hw.Op)
	assert.True(t, IsConnectionState(err, NotConnected))
	assert.Equal(t, `read "c1" failed: not_connected: gatt link dropped`, err.Error())
}

func TestValidateUUID(t *testing.T) {
	got, err := ValidateUUID("180D", "0x2a37")
	assert.NoError(t, err)
	assert.Equal(t, []string{"180d", "2a37"}, got)

	_, err = ValidateUUID()
	assert.Error(t, err)
	_, err = ValidateUUID("180d", "")
	assert.EqualError(t, err, "UUID at index 1 cannot be empty")
	_, err = ValidateUUID("nope")
	assert.EqualError(t, err, "invalid UUID format at index 0: nope")
}
