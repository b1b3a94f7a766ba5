package room

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateCode returns a random uppercase alphanumeric join code.
func generateCode(length int) (string, error) {
	// 252 is the largest multiple of 36 below 256; rejecting above it keeps
	// every symbol equally likely.
	const limit = 252

	var b strings.Builder
	b.Grow(length)
	buf := make([]byte, length*2)
	for b.Len() < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, c := range buf {
			if c >= limit {
				continue
			}
			b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
			if b.Len() == length {
				break
			}
		}
	}
	return b.String(), nil
}

// normalizeCode upper-cases and trims a user-typed join code.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
