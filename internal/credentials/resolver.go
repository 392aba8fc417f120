// Package credentials resolves per-node connection secrets at execution time.
package credentials

import (
	"context"
	"sync"

	"autoremedy/internal/errs"
	"autoremedy/pkg/models"
)

// Resolver looks up the credential of a given type for a node. Implementations
// return an errs.KindNotFound error when none is configured.
type Resolver interface {
	Resolve(ctx context.Context, nodeID string, credType models.CredentialType) (*models.Credential, error)
}

type credKey struct {
	node string
	typ  models.CredentialType
}

// StaticResolver serves credentials loaded from the inventory file.
type StaticResolver struct {
	mu    sync.RWMutex
	creds map[credKey]models.Credential
}

// NewStatic builds a resolver over the given credentials.
func NewStatic(creds ...models.Credential) *StaticResolver {
	s := &StaticResolver{creds: make(map[credKey]models.Credential, len(creds))}
	for _, c := range creds {
		s.Put(c)
	}
	return s
}

// Put adds or replaces a credential.
func (s *StaticResolver) Put(c models.Credential) {
	s.mu.Lock()
	s.creds[credKey{node: c.NodeID, typ: c.Type}] = c
	s.mu.Unlock()
}

// Resolve implements Resolver.
func (s *StaticResolver) Resolve(_ context.Context, nodeID string, credType models.CredentialType) (*models.Credential, error) {
	s.mu.RLock()
	c, ok := s.creds[credKey{node: nodeID, typ: credType}]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.NotFound("credential", nodeID+"/"+string(credType))
	}
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out, nil
}

// Chain tries each resolver in order and returns the first credential found.
// Errors other than not-found stop the chain.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, nodeID string, credType models.CredentialType) (*models.Credential, error) {
	for _, r := range c {
		cred, err := r.Resolve(ctx, nodeID, credType)
		if err == nil {
			return cred, nil
		}
		if !errs.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, errs.NotFound("credential", nodeID+"/"+string(credType))
}
