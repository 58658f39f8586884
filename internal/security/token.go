// Package security issues and verifies the bearer tokens of the reference
// stats gateway. A token has the form "<userID>.<secret>"; only a bcrypt hash
// of the secret is stored.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrMalformedToken is returned when a token lacks the "<userID>.<secret>" form.
var ErrMalformedToken = errors.New("malformed bearer token")

// secretBytes is the entropy of a generated secret.
const secretBytes = 24

// Issued is a freshly generated credential. Token is shown to the user
// once; Hash is what gets persisted.
type Issued struct {
	Token string
	Hash  string
}

// IssueToken generates a secret for userID and hashes it with cost.
// A cost of 0 uses bcrypt.DefaultCost.
func IssueToken(userID string, cost int) (Issued, error) {
	if userID == "" || strings.Contains(userID, ".") {
		return Issued{}, fmt.Errorf("invalid user id %q", userID)
	}
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return Issued{}, fmt.Errorf("generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return Issued{}, fmt.Errorf("hash secret: %w", err)
	}
	return Issued{Token: userID + "." + secret, Hash: string(hash)}, nil
}

// ParseToken splits a bearer token into user id and secret.
func ParseToken(token string) (userID, secret string, err error) {
	userID, secret, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || userID == "" || secret == "" {
		return "", "", ErrMalformedToken
	}
	return userID, secret, nil
}

// VerifySecret reports whether secret matches the stored hash.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
