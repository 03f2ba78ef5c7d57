package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
)

const (
	secretKeyEnv         = "TOOLBRIDGE_SECRET_KEY"
	encryptedValuePrefix = "enc:v1:"
)

// secretCodec seals header and env values at rest with AES-GCM.
type secretCodec struct {
	aead cipher.AEAD
}

func newSecretCodec(scope string) (*secretCodec, error) {
	block, err := aes.NewCipher(deriveSecretKey(scope))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &secretCodec{aead: aead}, nil
}

// deriveSecretKey prefers TOOLBRIDGE_SECRET_KEY; otherwise the key is bound
// to the local user, host and store path.
func deriveSecretKey(scope string) []byte {
	if env := strings.TrimSpace(os.Getenv(secretKeyEnv)); env != "" {
		if decoded, err := base64.StdEncoding.DecodeString(env); err == nil && len(decoded) > 0 {
			sum := sha256.Sum256(decoded)
			return sum[:]
		}
		sum := sha256.Sum256([]byte(env))
		return sum[:]
	}

	username := "unknown"
	if current, err := user.Current(); err == nil && current != nil {
		username = current.Username
	}
	hostname, _ := os.Hostname()
	sum := sha256.Sum256([]byte(fmt.Sprintf("toolbridge:%s:%s:%s", username, hostname, strings.TrimSpace(scope))))
	return sum[:]
}

func (c *secretCodec) encrypt(value string) (string, error) {
	if strings.TrimSpace(value) == "" || isEncryptedValue(value) {
		return value, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(value), nil)
	return encryptedValuePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *secretCodec) decrypt(value string) (string, error) {
	if !isEncryptedValue(value) {
		return value, nil
	}
	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), encryptedValuePrefix))
	if err != nil {
		return "", err
	}
	size := c.aead.NonceSize()
	if len(payload) < size {
		return "", errors.New("store: encrypted payload is too short")
	}
	plain, err := c.aead.Open(nil, payload[:size], payload[size:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (c *secretCodec) sealMap(values map[string]string, open bool) error {
	for key, value := range values {
		var (
			out string
			err error
		)
		if open {
			out, err = c.decrypt(value)
		} else {
			out, err = c.encrypt(value)
		}
		if err != nil {
			return fmt.Errorf("%q: %w", key, err)
		}
		values[key] = out
	}
	return nil
}

func isEncryptedValue(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), encryptedValuePrefix)
}

// MaskedValue replaces header and env values in user-facing output.
const MaskedValue = "**********"

// Redact returns a copy of src with header and env values masked.
func Redact(src Source) Source {
	out := cloneSource(src)
	for key, value := range out.Headers {
		if strings.TrimSpace(value) != "" {
			out.Headers[key] = MaskedValue
		}
	}
	for key, value := range out.Env {
		if strings.TrimSpace(value) != "" {
			out.Env[key] = MaskedValue
		}
	}
	return out
}
