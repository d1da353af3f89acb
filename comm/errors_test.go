package comm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("boom")

	err := &CommunicatorError{Op: "split cross-node group", Err: cause}
	assert.Equal(t, "communicator: split cross-node group: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "communicator: barrier failed",
		(&CommunicatorError{Op: "barrier"}).Error())

	shm := &SharedMemoryError{Op: "allocate shared window", Err: cause}
	assert.Equal(t, "shared memory: allocate shared window: boom", shm.Error())
	assert.ErrorIs(t, shm, cause)

	assert.Equal(t, "configuration: device group size mismatch: declared 4, got 2",
		(&ConfigurationError{Reason: "device group size mismatch: declared 4, got 2"}).Error())

	assert.Equal(t, "protocol violation: root rank mismatch",
		(&ProtocolViolation{Reason: "root rank mismatch"}).Error())
}

func TestErrorUnwrapping(t *testing.T) {
	inner := &CommunicatorError{Op: "broadcast"}
	outer := fmt.Errorf("report failed: %w", inner)

	var commErr *CommunicatorError
	assert.True(t, errors.As(outer, &commErr))
	assert.Equal(t, "broadcast", commErr.Op)
}
