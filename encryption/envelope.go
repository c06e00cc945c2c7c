package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const envelopeKeySize = 32

// ErrInvalidEnvelope is returned when a ciphertext envelope is not iv:ciphertext
var ErrInvalidEnvelope = errors.New("invalid encrypted text format")

// envelopeKey right-pads key with '0' bytes, or truncates it, to exactly 32 bytes.
// Remote jobs derive the same key, so the scheme is fixed.
func envelopeKey(key string) []byte {
	derived := []byte(key)
	if len(derived) >= envelopeKeySize {
		return derived[:envelopeKeySize]
	}
	return append(derived, bytes.Repeat([]byte{'0'}, envelopeKeySize-len(derived))...)
}

// Seal encrypts plaintext with AES-256-CBC and PKCS7 padding under a fresh IV
// and returns base64(iv) + ":" + base64(ciphertext).
func Seal(plaintext, key string) (string, error) {
	block, err := aes.NewCipher(envelopeKey(key))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal. The envelope is split on the first ':'.
func Open(envelope, key string) (string, error) {
	ivPart, ctPart, found := strings.Cut(envelope, ":")
	if !found || ivPart == "" || ctPart == "" {
		return "", ErrInvalidEnvelope
	}

	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrInvalidEnvelope, err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: iv must be %d bytes", ErrInvalidEnvelope, aes.BlockSize)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrInvalidEnvelope, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrInvalidEnvelope)
	}

	block, err := aes.NewCipher(envelopeKey(key))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded data length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
