package utils

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA-256 hashing for reset tokens
    "encoding/hex"  // hex encoding and decoding functions
    "time"
)

// ResetToken is a single-use password reset credential.  Raw goes to the
// user; only HashToken(Raw) is persisted.
type ResetToken struct {
    Raw string
    Exp time.Time
}

// NewResetToken returns 32 random bytes as hex (64 characters) that expire
// ttl from now.
func NewResetToken(ttl time.Duration) (ResetToken, error) {
    raw, err := randomHex(32)
    if err != nil {
        return ResetToken{}, err
    }
    return ResetToken{Raw: raw, Exp: time.Now().UTC().Add(ttl)}, nil
}

// HashToken returns the SHA-256 hash of the raw token as a hex string.
func HashToken(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
