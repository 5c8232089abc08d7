package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"deposit-bridge-go/internal/models"
)

// CredentialIssuer mints request-scoped credentials for metered calls. Tokens
// live in memory only: they are short-lived by design and a restart simply
// invalidates outstanding ones.
type CredentialIssuer struct {
	ttl time.Duration

	mu     sync.Mutex
	active map[string]models.Credential
}

// NewCredentialIssuer creates an issuer with the given token lifetime.
func NewCredentialIssuer(ttl time.Duration) *CredentialIssuer {
	return &CredentialIssuer{
		ttl:    ttl,
		active: make(map[string]models.Credential),
	}
}

// Issue mints a fresh credential for one call by userId against serviceId.
func (c *CredentialIssuer) Issue(userId, serviceId string) models.Credential {
	now := time.Now().UTC()
	cred := models.Credential{
		Token:     uuid.New().String(),
		UserId:    userId,
		ServiceId: serviceId,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	c.active[cred.Token] = cred
	return cred
}

// Validate returns the credential for token if it exists and has not expired.
func (c *CredentialIssuer) Validate(token string) (models.Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, ok := c.active[token]
	if !ok || time.Now().UTC().After(cred.ExpiresAt) {
		delete(c.active, token)
		return models.Credential{}, false
	}
	return cred, true
}

// prune drops expired tokens. Caller holds the lock.
func (c *CredentialIssuer) prune(now time.Time) {
	for token, cred := range c.active {
		if now.After(cred.ExpiresAt) {
			delete(c.active, token)
		}
	}
}
