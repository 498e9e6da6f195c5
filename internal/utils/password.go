package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes an admin credential with bcrypt at the configured
// cost.  Both the back-office login store and the adminctl provisioning
// tool go through this so all stored hashes share one cost parameter.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt hash.
// bcrypt's comparison is constant time; a malformed hash simply fails.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
