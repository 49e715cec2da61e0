package goCred

import (
	"context"
	"fmt"
	"time"
)

// SoftDelete marks a principal deleted. An empty targetID means the actor
// itself; deleting anyone else requires [RoleAdmin]. ChangeCredentialsAt
// moves to now so the target's outstanding tokens stop verifying even after
// a later restore.
func (e *Engine) SoftDelete(ctx context.Context, actor *AuthResult, targetID string) (Principal, error) {
	if err := e.ready(); err != nil {
		return Principal{}, err
	}
	if actor == nil || actor.Principal.ID == "" {
		return Principal{}, ErrUnauthenticated
	}
	if targetID == "" {
		targetID = actor.Principal.ID
	}
	if targetID != actor.Principal.ID && actor.Principal.Role != RoleAdmin {
		e.emitAudit(ctx, auditEventAccountDeleted, false, actor.Principal.ID, actor.JTI(), ErrForbidden, func() map[string]string {
			return map[string]string{"target": targetID}
		})
		return Principal{}, ErrForbidden
	}

	now := e.now()
	updated, err := e.principals.UpdateFields(ctx, targetID, Condition{NotDeleted: true}, Patch{
		DeletedAt:           &now,
		DeletedBy:           &actor.Principal.ID,
		ChangeCredentialsAt: &now,
	})
	if err != nil {
		return Principal{}, e.mapUpdateError(ctx, err, ErrPrincipalNotFound)
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, actor.Principal.ID, actor.JTI(), nil, func() map[string]string {
		return map[string]string{"target": targetID}
	})
	return updated, nil
}

// Restore reverses SoftDelete. Admin only.
func (e *Engine) Restore(ctx context.Context, actor *AuthResult, targetID string) (Principal, error) {
	if err := e.ready(); err != nil {
		return Principal{}, err
	}
	if actor == nil || actor.Principal.ID == "" {
		return Principal{}, ErrUnauthenticated
	}
	if actor.Principal.Role != RoleAdmin {
		return Principal{}, ErrForbidden
	}
	if targetID == "" {
		return Principal{}, fmt.Errorf("%w: target id", ErrInvalidInput)
	}

	now := e.now()
	updated, err := e.principals.UpdateFields(ctx, targetID, Condition{Deleted: true}, Patch{
		DeletedAt:  &time.Time{},
		DeletedBy:  ref(""),
		RestoredAt: &now,
		RestoredBy: &actor.Principal.ID,
	})
	if err != nil {
		return Principal{}, e.mapUpdateError(ctx, err, ErrPrincipalNotFound)
	}

	e.metricInc(MetricAccountRestored)
	e.emitAudit(ctx, auditEventAccountRestored, true, actor.Principal.ID, actor.JTI(), nil, func() map[string]string {
		return map[string]string{"target": targetID}
	})
	return updated, nil
}

// RevealPhone decrypts p's phone number.
func (e *Engine) RevealPhone(p Principal) (string, error) {
	if p.Phone == "" {
		return "", nil
	}
	if e == nil || e.cipher == nil {
		return "", fmt.Errorf("%w: field cipher", ErrConfigurationMissing)
	}
	return e.cipher.Decrypt(p.Phone)
}
