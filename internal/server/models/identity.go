// Package models defines the server-side data shared between the vault
// engine, the auth layer and the repositories.
package models

import "context"

// Identity is what an identity provider resolves a bearer token to.
type Identity struct {
	UserID string
	// OrgID is empty when the user does not belong to an organization.
	OrgID string
}

// Actor is the label written to the journal for this identity.
func (i *Identity) Actor() string {
	if i == nil || i.UserID == "" {
		return "anonymous"
	}
	return i.UserID
}

type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity attached by the auth layer, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
