package utils // package utils provides helper functions for token creation and hashing

import (
    "errors"
    "fmt"
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrInvalidToken is returned by ParseAccessToken for any token that is
// malformed, signed with another key or algorithm, expired, or missing the
// user id claim.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed bearer token along with its expiry.
type AccessToken struct {
    Token string    `json:"token"`   // the serialized JWT string
    Exp   time.Time `json:"expires"` // the UTC expiration time
}

// Claims carries the user id under "_id", the claim name existing clients
// already decode, next to the registered exp/iat claims.
type Claims struct {
    UserID string `json:"_id"`
    jwt.RegisteredClaims
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The token embeds
// the user id and expires ttl from now.
func NewAccessToken(secret, userID string, ttl time.Duration) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := Claims{
        UserID: userID,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   userID,
            ExpiresAt: jwt.NewNumericDate(exp),
            IssuedAt:  jwt.NewNumericDate(now),
        },
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, fmt.Errorf("sign access token: %w", err)
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies the signature and expiry of raw and returns the
// embedded user id.
func ParseAccessToken(secret, raw string) (string, error) {
    var claims Claims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        // Reject anything that is not HMAC so a forged "none"/RSA header
        // cannot bypass the shared secret.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return "", ErrInvalidToken
    }
    if claims.UserID == "" {
        return "", ErrInvalidToken
    }
    return claims.UserID, nil
}
