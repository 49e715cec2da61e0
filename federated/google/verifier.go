// Package google verifies Google Sign-In ID tokens for goCred.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goCred "github.com/MrEthical07/goCred"
	"google.golang.org/api/idtoken"
)

var (
	ErrClientIDRequired = errors.New("google: client id required")
	ErrEmailMissing     = errors.New("google: email not found in claims")
)

type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Verifier validates ID tokens against one OAuth client id.
type Verifier struct {
	clientID string
	validate validateFunc
}

func NewVerifier(clientID string) (*Verifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrClientIDRequired
	}
	return &Verifier{clientID: clientID, validate: idtoken.Validate}, nil
}

// VerifyIDToken checks the signature, audience and expiry of token and
// returns its identity claims. It implements goCred.FederatedVerifier.
func (v *Verifier) VerifyIDToken(ctx context.Context, token string) (goCred.FederatedIdentity, error) {
	payload, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		return goCred.FederatedIdentity{}, fmt.Errorf("google: validate id token: %w", err)
	}

	email, ok := payload.Claims["email"].(string)
	if !ok || email == "" {
		return goCred.FederatedIdentity{}, ErrEmailMissing
	}
	name, _ := payload.Claims["name"].(string)

	return goCred.FederatedIdentity{
		Subject:       payload.Subject,
		Email:         email,
		EmailVerified: emailVerified(payload.Claims["email_verified"]),
		Name:          name,
	}, nil
}

// emailVerified accepts both the boolean and the legacy string form.
func emailVerified(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}
