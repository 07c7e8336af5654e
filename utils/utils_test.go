package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(4)
	require.NoError(t, err)
	assert.Len(t, code, 8)

	other, err := GenerateCode(4)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestHmac256(t *testing.T) {
	sig := Hmac256("id:987;request-id:req-1;ts:1700000000;", "secret")
	assert.Equal(t, Hmac256("id:987;request-id:req-1;ts:1700000000;", "secret"), sig)
	assert.NotEqual(t, Hmac256("id:987;request-id:req-1;ts:1700000000;", "other"), sig)
}

func TestCompareHash(t *testing.T) {
	hash, err := GenerateHash("cron-secret")
	require.NoError(t, err)

	assert.True(t, CompareHash(hash, "cron-secret"))
	assert.False(t, CompareHash(hash, "wrong"))
	assert.False(t, CompareHash("not-a-hash", "cron-secret"))
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("boom")

	for i := 0; i < 10; i++ {
		err := cb.Execute(func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")

	for i := 0; i < 50; i++ {
		require.NoError(t, cb.Execute(func() error { return nil }))
	}

	result, err := Do(cb, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}
