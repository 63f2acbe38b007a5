// internal/delivery/registry.go
package delivery

import (
	"fmt"
	"strings"
	"sync"

	"github.com/user/telerpg/internal/types"
)

// Handler delivers a reply to a subject.
type Handler func(subject types.SubjectID, reply *types.Reply) error

// Registry routes outbound replies to the appropriate delivery handler
// based on subject ID prefix (e.g. "telegram:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for subject IDs starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver finds the handler matching the subject's prefix and calls
// it. Returns an error if no handler is registered for the prefix.
func (r *Registry) Deliver(subject types.SubjectID, reply *types.Reply) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(string(subject), prefix) {
			return handler(subject, reply)
		}
	}
	return fmt.Errorf("no delivery handler for subject: %s", subject)
}
