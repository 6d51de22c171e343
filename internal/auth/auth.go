// Package auth hashes and verifies the bearer tokens parties present to each
// other. Tokens are random and only their bcrypt hashes are stored by the
// receiving side.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// tokenBytes is the entropy of a generated token.
const tokenBytes = 32

// NewToken returns a random hex token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hasher hashes and checks tokens with bcrypt.
type Hasher struct {
	// Cost is the bcrypt cost. Zero means bcrypt.DefaultCost.
	Cost int
}

// Hash returns the bcrypt hash of token.
func (h Hasher) Hash(token string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(b), nil
}

// Verify checks token against hash. A mismatch, an empty hash or an empty
// token fails with AUTHENTICATION_FAILURE for subject.
func (h Hasher) Verify(hash, token, subject string) error {
	if hash == "" || token == "" {
		return model.NewAuthError(subject)
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return model.NewAuthError(subject)
	}
	if err != nil {
		return &model.Error{Code: model.ErrCodeAuthenticationFailure, Message: "unreadable token hash", Err: err}
	}
	return nil
}
