package policy

import (
	"context"
	"crypto/subtle"
	"errors"
)

// Administrative actions the api service gates
const (
	ActionRequeueJob      = "jobs:requeue"
	ActionRetryOutbox     = "outbox:retry"
	ActionInvalidateCache = "cache:invalidate"
)

var (
	// ErrUnauthorized is returned when no credential is presented
	ErrUnauthorized = errors.New("missing credentials")
	// ErrForbidden is returned when the credential does not grant the action
	ErrForbidden = errors.New("action not permitted")
)

// Authorizer gates administrative triggers. The engine itself performs no
// authorization; every admin endpoint composes a check explicitly before
// invoking logic.
type Authorizer interface {
	Authorize(ctx context.Context, token, action string) error
}

// StaticToken authorizes every action against a single configured admin
// token
type StaticToken struct {
	adminToken string
}

// NewStaticToken creates a static-token authorizer
func NewStaticToken(adminToken string) *StaticToken {
	return &StaticToken{adminToken: adminToken}
}

// Authorize checks the presented token
func (a *StaticToken) Authorize(ctx context.Context, token, action string) error {
	if token == "" {
		return ErrUnauthorized
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
		return ErrForbidden
	}

	return nil
}
