package lifecycle

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const confirmationTokenBytes = 32

// ConfirmationToken is a single-use recruiter confirmation secret.
// Only Hash is persisted; Plain travels in the email link.
type ConfirmationToken struct {
	Plain     string
	Hash      string
	ExpiresAt time.Time
}

// NewConfirmationToken 生成随机确认令牌，并计算其存储用哈希。
func NewConfirmationToken(now time.Time, ttl time.Duration) (ConfirmationToken, error) {
	buf := make([]byte, confirmationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return ConfirmationToken{}, fmt.Errorf("read random bytes: %w", err)
	}
	plain := base64.RawURLEncoding.EncodeToString(buf)
	return ConfirmationToken{
		Plain:     plain,
		Hash:      HashConfirmationToken(plain),
		ExpiresAt: now.Add(ttl),
	}, nil
}

// HashConfirmationToken returns the hex SHA-256 of a plain token.
func HashConfirmationToken(plain string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(plain)))
	return hex.EncodeToString(sum[:])
}
