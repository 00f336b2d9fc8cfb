// README: Caller identity for the order API: the Token both verifiers produce, and the Firebase-backed verifier.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"foodline/internal/types"
)

// RoleClaim is the custom claim carrying the marketplace role.
const RoleClaim = "role"

// Token is a verified caller. UID is the user id stored on orders as
// client_id, owner_id or driver_id.
type Token struct {
	UID    string
	Claims map[string]interface{}
}

// Role returns the caller's role, or "" when the claim is absent. Unknown
// roles pass through and are refused by the order machine.
func (t *Token) Role() types.Role {
	r, _ := t.Claims[RoleClaim].(string)
	return types.Role(r)
}

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Token, error)
}

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier is used when no JWT secret is configured. The role
// claim is set on accounts by the marketplace admin tooling via custom
// claims; tokens minted before a role change keep the old role until refresh.
// An empty credentialsFile falls back to application-default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app for project %q: %w", projectID, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

// VerifyIDToken also rejects tokens of disabled or revoked accounts, so a
// suspended driver is cut off before the token expires.
func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	tok, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &Token{UID: tok.UID, Claims: tok.Claims}, nil
}
