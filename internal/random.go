// Package internal holds token material helpers shared by the engine.
package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// NewResetToken draws size bytes from the platform CSPRNG and returns them
// hex-encoded. The result is the opaque single-use password-reset secret.
func NewResetToken(size int) (string, error) {
	if size <= 0 {
		return "", errors.New("invalid reset token size")
	}

	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return hex.EncodeToString(raw), nil
}
