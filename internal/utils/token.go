package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are short-lived and encoded
// in the Authorization header when calling admin endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for an admin user.  It takes
// the signing secret, the admin ID and a TTL in minutes.  The JWT carries
// the standard claims: subject (sub), role, expiration (exp) and issued
// at (iat).
func NewAccessToken(secret string, adminID uint64, ttlMin int) (AccessToken, error) {
	exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  adminID,
		"role": "admin",
		"exp":  exp.Unix(),
		"iat":  time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewClaimToken returns a cryptographically secure random token used in
// claim links sent to waitlisted advertisers.  48 random bytes encode to a
// 96 character hex string, which is unguessable and safe in URLs.
func NewClaimToken() (string, error) {
	return randomHex(48)
}

// NewOnboardingGrant signs a short-lived JWT referencing a claimed waitlist
// request.  The onboarding collaborator exchanges the grant for the
// server-held form data; the client never carries the data itself, only
// this opaque reference.
func NewOnboardingGrant(secret string, requestID uint64, ttlMin int) (AccessToken, error) {
	exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":   requestID,
		"scope": "onboarding",
		"exp":   exp.Unix(),
		"iat":   time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseOnboardingGrant validates an onboarding grant and returns the
// waitlist request ID it references.  Expired or tampered grants fail.
func ParseOnboardingGrant(secret, raw string) (uint64, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return 0, errors.New("invalid grant")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || claims["scope"] != "onboarding" {
		return 0, errors.New("invalid grant scope")
	}
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return 0, errors.New("invalid grant subject")
	}
	return uint64(sub), nil
}

// randomHex returns n random bytes hex encoded (2n characters).  The
// underlying call to crypto/rand ensures cryptographically secure bytes.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
