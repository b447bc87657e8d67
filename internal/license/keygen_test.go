package license

import (
	"context"
	"errors"
	"testing"

	"github.com/keygen-sh/keygen-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestValidator(t *testing.T, key string, validate validateFunc) *KeygenValidator {
	kv := NewKeygenValidator(Config{Key: key, Account: "acct", Product: "prod"}, zaptest.NewLogger(t))
	kv.validate = validate
	kv.fingerprint = func() (string, error) { return "fp", nil }
	return kv
}

func TestValidateWithoutKeyIsNoop(t *testing.T) {
	kv := newTestValidator(t, "", func(context.Context, ...string) (*keygen.License, error) {
		t.Fatal("validate must not be called")
		return nil, nil
	})
	assert.False(t, kv.Enabled())
	assert.NoError(t, kv.ValidateLicense(context.Background()))
}

func TestValidateLicense(t *testing.T) {
	var got []string
	kv := newTestValidator(t, "ABCDEFGH-1234", func(_ context.Context, fps ...string) (*keygen.License, error) {
		got = fps
		return &keygen.License{ID: "lic-1"}, nil
	})
	require.NoError(t, kv.ValidateLicense(context.Background()))
	assert.Equal(t, []string{"fp"}, got)
}

func TestValidateLicenseErrors(t *testing.T) {
	kv := newTestValidator(t, "ABCDEFGH-1234", func(context.Context, ...string) (*keygen.License, error) {
		return nil, keygen.ErrLicenseExpired
	})
	assert.ErrorIs(t, kv.ValidateLicense(context.Background()), ErrExpired)

	kv.validate = func(context.Context, ...string) (*keygen.License, error) {
		return nil, errors.New("network down")
	}
	assert.Error(t, kv.ValidateLicense(context.Background()))

	kv.validate = func(context.Context, ...string) (*keygen.License, error) {
		return nil, keygen.ErrLicenseNotActivated
	}
	assert.Error(t, kv.ValidateLicense(context.Background()))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", maskKey("short"))
	assert.Equal(t, "ABCDEFGH...", maskKey("ABCDEFGH-1234-5678"))
}
