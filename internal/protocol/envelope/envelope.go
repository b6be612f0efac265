// Package envelope wraps encrypted chat text together with the sender's
// revocation status.
package envelope

import (
	"dtn_chat/internal/model"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrDecode        = errors.New("malformed message envelope")
	ErrDecryptFailed = errors.New("message decryption failed")
)

type (
	Cipher interface {
		Encrypt(plaintext string) (string, error)
		Decrypt(ciphertext string) (string, error)
	}

	Codec struct {
		cipher Cipher
	}
)

func NewCodec(cipher Cipher) *Codec {
	return &Codec{cipher: cipher}
}

// Encode encrypts plaintext and serializes it with the given hex status.
func (c *Codec) Encode(plaintext, statusHex string) ([]byte, error) {
	ciphertext, err := c.cipher.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return json.Marshal(&model.MessageEnvelope{
		Ciphertext:       ciphertext,
		RevocationStatus: statusHex,
	})
}

func (c *Codec) Decode(data []byte) (*model.MessageEnvelope, error) {
	var env model.MessageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Ciphertext == "" {
		return nil, fmt.Errorf("%w: missing message", ErrDecode)
	}
	if env.RevocationStatus == "" {
		return nil, fmt.Errorf("%w: missing status", ErrDecode)
	}
	if _, err := hex.DecodeString(env.RevocationStatus); err != nil {
		return nil, fmt.Errorf("%w: status: %v", ErrDecode, err)
	}
	return &env, nil
}

func (c *Codec) Decrypt(env *model.MessageEnvelope) (string, error) {
	plaintext, err := c.cipher.Decrypt(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plaintext, nil
}
