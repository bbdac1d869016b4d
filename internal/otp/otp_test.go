package otp

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Format(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := Generate(10 * time.Minute)
		require.NoError(t, err)

		require.Len(t, code.Value, CodeLength)

		n, err := strconv.Atoi(code.Value)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestGenerate_Expiry(t *testing.T) {
	ttl := 10 * time.Minute
	before := time.Now()

	code, err := Generate(ttl)
	require.NoError(t, err)

	after := time.Now()
	assert.False(t, code.ExpiresAt.Before(before.Add(ttl)))
	assert.False(t, code.ExpiresAt.After(after.Add(ttl)))
}

func TestGenerate_Distinct(t *testing.T) {
	// With 900k possible values, 20 draws colliding on every pair is
	// effectively impossible; require at least two distinct codes.
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code, err := Generate(time.Minute)
		require.NoError(t, err)
		seen[code.Value] = true
	}
	assert.Greater(t, len(seen), 1)
}
