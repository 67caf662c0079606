package security

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"PulseIM/tools/errs"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("s3cret"))

	token, exp, err := Generate(opts, "u42")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(opts.TTL), exp, 5*time.Second)

	sub, err := Verify(opts, token)
	require.NoError(t, err)
	require.Equal(t, "u42", sub)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultOptions([]byte("one")), "u1")
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("two")), token)
	require.True(t, errors.Is(err, errs.ErrTokenInvalid))
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("s3cret")
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions(secret), signed)
	require.True(t, errors.Is(err, errs.ErrTokenInvalid))
}

func TestVerifyRejectsNonHMAC(t *testing.T) {
	// alg=none style forgery: unsigned token must not pass
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"sub": "u1"})
	signed, err := tok.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("s3cret")), signed)
	require.True(t, errors.Is(err, errs.ErrTokenInvalid))
}

func TestVerifyMissingSubject(t *testing.T) {
	secret := []byte("s3cret")
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions(secret), signed)
	require.True(t, errors.Is(err, errs.ErrTokenInvalid))
}

func TestUnsupportedAlg(t *testing.T) {
	opts := Options{Secret: []byte("x"), Alg: "RS256"}
	_, _, err := Generate(opts, "u1")
	require.Error(t, err)

	_, err = Verify(opts, "whatever")
	require.Error(t, err)
}

func TestAlgVariants(t *testing.T) {
	for _, alg := range []string{"HS256", "hs384", " HS512 "} {
		opts := Options{Secret: []byte("x"), Alg: alg, TTL: time.Hour}
		token, _, err := Generate(opts, "u1")
		require.NoError(t, err, alg)
		sub, err := Verify(opts, token)
		require.NoError(t, err, alg)
		require.Equal(t, "u1", sub)
	}
}
