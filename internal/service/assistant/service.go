// Package assistant coordinates a conversation turn end to end: identity and
// project context resolution, risk screening, memory, and the model call.
package assistant

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"teamassist/internal/cache"
	"teamassist/internal/memory"
	"teamassist/internal/risk"
	"teamassist/internal/storage"
)

// Completer produces an assistant reply for a prepared message list.
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

// Service handles record queries and chat turns for authenticated users.
type Service struct {
	store      *storage.Store
	identities *IdentityResolver
	memory     *memory.Manager
	riskLogger risk.Logger
	completer  Completer
}

// NewService builds the assistant service from its collaborators.
func NewService(store *storage.Store, identities *IdentityResolver, mem *memory.Manager, riskLogger risk.Logger, completer Completer) *Service {
	return &Service{
		store:      store,
		identities: identities,
		memory:     mem,
		riskLogger: riskLogger,
		completer:  completer,
	}
}

// Memory exposes the memory manager for history endpoints.
func (s *Service) Memory() *memory.Manager {
	return s.memory
}

// Cache exposes the identity cache client, if any.
func (s *Service) Cache() *cache.Client {
	return s.identities.cache
}
