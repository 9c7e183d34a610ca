package gateway

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrCrypto is returned for any decrypt, padding or key-material failure.
	ErrCrypto = errors.New("gateway: crypto failure")
	// ErrMalformedRequest is returned when required envelope fields are absent.
	ErrMalformedRequest = errors.New("gateway: malformed callback request")
	// ErrDecode is returned when a decrypted payload is neither JSON nor a query string.
	ErrDecode = errors.New("gateway: undecodable trade payload")
)

const (
	hashKeyLen = 32
	hashIVLen  = 16
)

// Field is one key/value pair of a trade payload. Field order is part of the
// wire format, so payloads are built from slices, not maps.
type Field struct {
	Key   string
	Value string
}

// Codec implements the gateway's symmetric trade protocol: AES-256-CBC with
// PKCS#7 padding over a hex wire encoding, plus a SHA-256 checksum keyed with
// the merchant hash key and IV.
type Codec struct {
	key []byte
	iv  []byte
}

// NewCodec validates the merchant key material and returns a codec.
// The gateway mandates a 32-byte hash key and a 16-byte hash IV.
func NewCodec(hashKey, hashIV string) (*Codec, error) {
	if len(hashKey) != hashKeyLen {
		return nil, fmt.Errorf("%w: hash key must be %d bytes, got %d", ErrCrypto, hashKeyLen, len(hashKey))
	}
	if len(hashIV) != hashIVLen {
		return nil, fmt.Errorf("%w: hash IV must be %d bytes, got %d", ErrCrypto, hashIVLen, len(hashIV))
	}
	return &Codec{key: []byte(hashKey), iv: []byte(hashIV)}, nil
}

// SerializeFields renders fields as key=urlencode(value)&... in the given order.
func SerializeFields(fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Key + "=" + url.QueryEscape(f.Value)
	}
	return strings.Join(parts, "&")
}

// EncryptFields serializes fields in order and encrypts them, returning the
// hex-encoded ciphertext the gateway expects as TradeInfo.
func (c *Codec) EncryptFields(fields []Field) (string, error) {
	return c.Encrypt(SerializeFields(fields))
}

// Encrypt encrypts a plaintext payload and returns lowercase hex.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	padded := padPKCS7([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.iv).CryptBlocks(ciphertext, padded)
	return hex.EncodeToString(ciphertext), nil
}

// Decrypt decodes hex ciphertext and decrypts it. Hex case is not significant.
func (c *Codec) Decrypt(hexPayload string) (string, error) {
	ciphertext, err := hex.DecodeString(strings.TrimSpace(hexPayload))
	if err != nil {
		return "", fmt.Errorf("%w: invalid hex payload: %v", ErrCrypto, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d is not a block multiple", ErrCrypto, len(ciphertext))
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, c.iv).CryptBlocks(plain, ciphertext)
	unpadded, err := unpadPKCS7(plain, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return string(unpadded), nil
}

// ComputeSignature returns the uppercase hex SHA-256 checksum over
// "HashKey=<key>&<hexPayload>&HashIV=<iv>".
func (c *Codec) ComputeSignature(hexPayload string) string {
	sum := sha256.Sum256([]byte("HashKey=" + string(c.key) + "&" + hexPayload + "&HashIV=" + string(c.iv)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifySignature recomputes the checksum and compares it to the claimed one.
// Comparison is case-insensitive, whitespace-trimmed and constant-time.
func (c *Codec) VerifySignature(claimed, hexPayload string) bool {
	want := c.ComputeSignature(hexPayload)
	got := strings.ToUpper(strings.TrimSpace(claimed))
	if len(want) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func padPKCS7(b []byte, blockSize int) []byte {
	padLen := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func unpadPKCS7(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(b[len(b)-1])
	if padLen < 1 || padLen > blockSize {
		return nil, fmt.Errorf("invalid padding value %d", padLen)
	}
	for i := len(b) - padLen; i < len(b); i++ {
		if b[i] != byte(padLen) {
			return nil, errors.New("inconsistent padding bytes")
		}
	}
	return b[:len(b)-padLen], nil
}
