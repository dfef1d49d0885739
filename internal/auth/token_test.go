package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/billtracker/internal/common"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer([]byte("secret"), time.Hour)

	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	username, err := issuer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "alice", username)
}

func TestIssuer_Expired(t *testing.T) {
	issuer := NewIssuer([]byte("secret"), time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Parse(token)
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestIssuer_WrongKey(t *testing.T) {
	token, err := NewIssuer([]byte("one"), time.Hour).Issue("alice")
	require.NoError(t, err)

	_, err = NewIssuer([]byte("two"), time.Hour).Parse(token)
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestIssuer_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.RegisteredClaims{Issuer: issuer, Subject: "alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewIssuer([]byte("secret"), time.Hour).Parse(token)
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestIssuer_NoKey(t *testing.T) {
	_, err := NewIssuer(nil, time.Hour).Issue("alice")
	require.Error(t, err)
}
