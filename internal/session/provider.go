// Package session owns the one authenticated handle used by the paginator and
// the batch executor.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

// Authenticator is the remote login collaborator.
type Authenticator interface {
	Authenticate(ctx context.Context, creds models.Credentials) (*models.Session, error)
}

// Terminator deletes a remote session. Optional.
type Terminator interface {
	DeleteSession(ctx context.Context, sess *models.Session) error
}

var appPasswordPattern = regexp.MustCompile(`^[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}$`)

// IsAppPassword reports whether secret has the shape of a service app password.
func IsAppPassword(secret string) bool {
	return appPasswordPattern.MatchString(secret)
}

type Provider struct {
	auth  Authenticator
	creds models.Credentials

	// RequireAppPassword rejects secrets that are not shaped like an app password
	// before any network call.
	RequireAppPassword bool

	mu   sync.Mutex
	sess *models.Session
}

func NewProvider(auth Authenticator, creds models.Credentials) *Provider {
	return &Provider{
		auth:               auth,
		creds:              creds,
		RequireAppPassword: true,
	}
}

// Get returns the cached session, authenticating on first use.
func (p *Provider) Get(ctx context.Context) (*models.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sess != nil {
		return p.sess, nil
	}

	if p.creds.Identifier == "" || p.creds.Secret == "" {
		return nil, fmt.Errorf("%w: identifier and app password are required", models.ErrAuthenticationFailed)
	}
	if p.RequireAppPassword && !IsAppPassword(p.creds.Secret) {
		return nil, models.ErrAppPasswordRequired
	}

	sess, err := p.auth.Authenticate(ctx, p.creds)
	if err != nil {
		if errors.Is(err, models.ErrAuthenticationFailed) {
			return nil, fmt.Errorf("authenticate %s: %w", p.creds.Identifier, err)
		}
		// transport and service errors fail the login too
		return nil, fmt.Errorf("%w: authenticate %s: %w", models.ErrAuthenticationFailed, p.creds.Identifier, err)
	}
	if sess == nil || sess.DID == "" || sess.AccessJwt == "" {
		return nil, fmt.Errorf("%w: incomplete session for %s", models.ErrAuthenticationFailed, p.creds.Identifier)
	}

	p.sess = sess
	return sess, nil
}

// Invalidate drops the cached session so the next Get authenticates again.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.sess = nil
	p.mu.Unlock()
}

// Logout deletes the remote session when the authenticator supports it and
// drops the cached one either way.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	sess := p.sess
	p.sess = nil
	p.mu.Unlock()

	if sess == nil {
		return nil
	}
	t, ok := p.auth.(Terminator)
	if !ok {
		return nil
	}
	if err := t.DeleteSession(ctx, sess); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
