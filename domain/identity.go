// Package domain contains core concepts of the message delivery system.
// No runtime, network, or storage logic should be added here.
package domain

// UserID is the opaque identifier of an identity. Identities are owned by
// an external identity provider; this core only reads them.
type UserID string

// Identity is the read-only projection of a user as carried by a verified
// credential token.
type Identity struct {
	ID        UserID
	Name      string
	AvatarURL string
}
