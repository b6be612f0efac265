package model

import (
	"encoding/hex"
)

type (
	// MessageEnvelope is the chat record carried inside an ADU payload.
	MessageEnvelope struct {
		Ciphertext       string `json:"message"`
		RevocationStatus string `json:"status"`
	}
)

func (e *MessageEnvelope) StatusBytes() ([]byte, error) {
	return hex.DecodeString(e.RevocationStatus)
}
