package bridge

import (
	"dtn_chat/internal/model"
	"errors"
)

var (
	ErrLiveClosed = errors.New("live channel closed")
	// ErrRevocationMismatch means the peer's status did not verify. The
	// bridge treats it as tampering and stops.
	ErrRevocationMismatch = errors.New("revocation status mismatch")
	ErrUnexpectedPayload  = errors.New("unexpected payload")
)

// ExitCode maps a bridge error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, model.ErrSessionRejected):
		return 2
	case errors.Is(err, ErrRevocationMismatch):
		return 3
	}
	return 1
}
