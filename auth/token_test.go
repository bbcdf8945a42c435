package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestVerify_RoundTrip(t *testing.T) {
	req := require.New(t)
	secret := []byte("test-secret")
	identity := domain.Identity{ID: "u-alice", Name: "Alice", AvatarURL: "https://example.com/a.png"}

	token, err := GenerateToken(identity, secret, time.Hour)
	req.NoError(err)

	verified, err := NewVerifier(secret).Verify(token)
	req.NoError(err)
	req.Equal(identity, verified)
}

func TestVerify_Failures(t *testing.T) {
	req := require.New(t)
	secret := []byte("test-secret")
	identity := domain.Identity{ID: "u-alice", Name: "Alice"}
	verifier := NewVerifier(secret)

	goodToken, err := GenerateToken(identity, secret, time.Hour)
	req.NoError(err)

	expiredToken, err := GenerateToken(identity, secret, -time.Minute)
	req.NoError(err)

	wrongSecretToken, err := GenerateToken(identity, []byte("other-secret"), time.Hour)
	req.NoError(err)

	// A token signed with "none" must be refused even with a valid shape
	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{UserID: "u-alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	// A signed token carrying no user id is not an identity
	anonymousToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &CustomClaims{Name: "Nobody"}).
		SignedString(secret)
	req.NoError(err)

	tests := []struct {
		name  string
		token string
	}{
		{"Empty token", ""},
		{"Garbage token", "not.a.jwt"},
		{"Expired token", expiredToken},
		{"Wrong secret", wrongSecretToken},
		{"Unsigned alg none", noneToken},
		{"Missing user id", anonymousToken},
		{"Tampered payload", goodToken + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			require.ErrorIs(t, err, errors.ErrAuthentication)
		})
	}
}
