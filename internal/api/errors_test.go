package api

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindHelpers(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
		kind  ErrorKind
	}{
		{"invalid spec", NewInvalidSpecError("image is required"), IsInvalidSpec, KindInvalidSpec},
		{"transient", NewTransientError(cause, "create job %s", "srv-1"), IsTransient, KindTransient},
		{"permanent", NewPermanentError(cause, "create job"), IsPermanent, KindPermanent},
		{"readiness timeout", NewReadinessTimeoutError("srv-1", StateWaiting, time.Second), IsReadinessTimeout, KindReadinessTimeout},
		{"workload failed", NewWorkloadFailedError("srv-1", "BackoffLimitExceeded"), IsWorkloadFailed, KindWorkloadFailed},
		{"not ready", NewNotReadyError("srv-1", StatePending), IsNotReady, KindNotReady},
		{"not found", NewServerNotFoundError("srv-1"), IsNotFound, KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("failed to do thing: %w", tt.err)
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(wrapped), "helper must see through wrapping")
			assert.Equal(t, tt.kind, KindOf(wrapped))
		})
	}
}

func TestErrorKindHelpers_NonCore(t *testing.T) {
	err := errors.New("plain")
	assert.False(t, IsTransient(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrorKind(""), KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("etcdserver: request timed out")
	err := NewTransientError(cause, "create job %s", "srv-1").WithServer("srv-1")

	assert.Equal(t, "Transient: create job srv-1 (server srv-1): etcdserver: request timed out", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestError_WithServerCopies(t *testing.T) {
	base := NewNotReadyError("", StatePending)
	annotated := base.WithServer("srv-9")

	assert.Empty(t, base.ServerID)
	assert.Equal(t, "srv-9", annotated.ServerID)
}
