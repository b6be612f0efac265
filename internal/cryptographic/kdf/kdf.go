package kdf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

const MessageKeySize = 32

var messageKeyInfo = []byte("dtn_chat message")

// HKDF fills buffer from HKDF-SHA256(secret, salt, info).
func HKDF(secret, salt, info, buffer []byte) (int, error) {
	h := hkdf.New(sha256.New, secret, salt, info)
	return io.ReadFull(h, buffer)
}

// MessageKey derives the AEAD key used for chat messages from the
// pre-shared key both peers were provisioned with.
func MessageKey(sharedKey []byte) ([]byte, error) {
	buffer := make([]byte, MessageKeySize)
	if _, err := HKDF(sharedKey, nil, messageKeyInfo, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}
