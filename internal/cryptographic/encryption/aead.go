package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"dtn_chat/internal/cryptographic/kdf"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var ErrEmptyKey = errors.New("empty message key")

// AES-GCM helper. key must be 16/24/32 bytes.
func AEADEncrypt(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand.Read nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)
	// return nonce || ciphertext
	return append(nonce, ciphertext...), nil
}

func AEADDecrypt(key, nonceAndCiphertext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ns := aead.NonceSize()
	if len(nonceAndCiphertext) < ns {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce := nonceAndCiphertext[:ns]
	ct := nonceAndCiphertext[ns:]
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("aead.Open: %w", err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aead, nil
}

type (
	// MessageCipher encrypts chat text into base64 strings that survive the
	// JSON envelope unchanged.
	MessageCipher struct {
		key []byte
	}
)

func NewMessageCipher(sharedKey []byte) (*MessageCipher, error) {
	if len(sharedKey) == 0 {
		return nil, ErrEmptyKey
	}
	key, err := kdf.MessageKey(sharedKey)
	if err != nil {
		return nil, err
	}
	return &MessageCipher{key: key}, nil
}

func (c *MessageCipher) Encrypt(plaintext string) (string, error) {
	ct, err := AEADEncrypt(c.key, []byte(plaintext), nil)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (c *MessageCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("base64: %w", err)
	}
	plain, err := AEADDecrypt(c.key, raw, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
