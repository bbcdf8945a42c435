package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
// The issuing side lives in the external identity service; this package
// only needs the shape to verify and read it.
type CustomClaims struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens presented at the gateway handshake.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates the signature and expiration of a JWT string
// and projects it into a read-only Identity. Any failure maps to
// ErrAuthentication: the connection must be refused before a session exists.
func (v *Verifier) Verify(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Identity{}, errors.ErrAuthentication
	}

	return domain.Identity{
		ID:        domain.UserID(claims.UserID),
		Name:      claims.Name,
		AvatarURL: claims.AvatarURL,
	}, nil
}

// GenerateToken creates a signed JWT for a specific identity. Used by the
// dev seeding tool and by tests; production tokens come from the external
// identity service.
func GenerateToken(identity domain.Identity, secret []byte, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:    string(identity.ID),
		Name:      identity.Name,
		AvatarURL: identity.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-relay",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
