package model

import "errors"

var (
	// ErrSessionRejected is returned when the agent refuses the session
	// configuration (bad secret or agent id).
	ErrSessionRejected = errors.New("session rejected by agent")
	// ErrSessionClosed signals that the agent connection is gone and no
	// more frames will arrive.
	ErrSessionClosed = errors.New("session closed")
	ErrSendFailed    = errors.New("send failed")
)
