package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeySize indicates the key is not SharedSecretSize bytes.
	ErrInvalidKeySize = errors.New("crypto: invalid symmetric key size")
	// ErrInvalidCiphertext indicates ciphertext that cannot be a CBC stream.
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext length")
	// ErrInvalidPadding indicates corrupt PKCS#7 padding after decryption.
	ErrInvalidPadding = errors.New("crypto: invalid padding")
)

// fixedIV is the fixed public initialization vector. Payload confidentiality
// rests on the per-session DH secret, not on IV freshness.
var fixedIV = []byte("bluedrop-fixediv")

// Encrypt encrypts plaintext with AES-192-CBC under the 24-byte session
// secret, using PKCS#7 padding and the fixed public IV.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != SharedSecretSize {
		return nil, fmt.Errorf("%w: got %d want %d", ErrInvalidKeySize, len(key), SharedSecretSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	padded := padPKCS7(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, fixedIV).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt reverses Encrypt and strips the PKCS#7 padding.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(key) != SharedSecretSize {
		return nil, fmt.Errorf("%w: got %d want %d", ErrInvalidKeySize, len(key), SharedSecretSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidCiphertext, len(ciphertext))
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, fixedIV).CryptBlocks(padded, ciphertext)

	return unpadPKCS7(padded, block.BlockSize())
}

func padPKCS7(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-padLen], nil
}
