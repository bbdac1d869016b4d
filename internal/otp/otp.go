package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// CodeLength is the number of decimal digits in a verification code.
const CodeLength = 6

// codeRange covers [100000, 999999] so a code is always six digits and
// never loses a leading zero.
const (
	codeMin   = 100000
	codeRange = 900000
)

// Code is a one-time verification code together with its absolute expiry.
type Code struct {
	Value     string
	ExpiresAt time.Time
}

// Generate produces a uniformly distributed six-digit code that expires
// ttl from now. crypto/rand is the randomness source.
func Generate(ttl time.Duration) (Code, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return Code{}, fmt.Errorf("failed to generate otp: %w", err)
	}

	return Code{
		Value:     fmt.Sprintf("%06d", codeMin+n.Int64()),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}
