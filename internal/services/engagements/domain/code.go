package domain

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

const (
	codeMin  = 1000
	codeSpan = 9000
)

// NewVerificationCode mints a 4-digit code uniform over 1000-9999 using
// crypto/rand. Both handshake and confirmation codes use the same space but
// are minted independently.
func NewVerificationCode() (string, error) {
	// Rejection sampling keeps the distribution uniform across the span.
	const limit = (1 << 32) / codeSpan * codeSpan
	var b [4]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			return "", fmt.Errorf("read random code bytes: %w", err)
		}
		value := binary.BigEndian.Uint32(b[:])
		if value >= limit {
			continue
		}
		return fmt.Sprintf("%04d", codeMin+value%codeSpan), nil
	}
}
