package audit

import (
	"context"
	"sync"

	"eddo_server/core/port/out"
)

// StoreFactory builds a per-user audit store. The factory is injected so the
// registry stays free of any driver dependency.
type StoreFactory func(username string) out.AuditStore

// Registry memoizes per-user audit stores and remembers which audit
// databases have already been provisioned within this process. Entries are
// never evicted; tests reset the whole registry instead. Safe for concurrent
// use.
type Registry struct {
	couchURL string
	factory  StoreFactory

	mu      sync.Mutex
	stores  map[string]out.AuditStore
	ensured map[string]bool
}

func NewRegistry(couchURL string, factory StoreFactory) *Registry {
	return &Registry{
		couchURL: couchURL,
		factory:  factory,
		stores:   make(map[string]out.AuditStore),
		ensured:  make(map[string]bool),
	}
}

// For returns the memoized audit store for username, creating it on first
// use. The memo key includes the server URL so two registries against
// different servers never share stores.
func (r *Registry) For(username string) out.AuditStore {
	key := r.couchURL + ":" + username
	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[key]; ok {
		return store
	}
	store := r.factory(username)
	r.stores[key] = store
	return store
}

// Ensure provisions the user's audit database once per process. Later calls
// for the same user are free.
func (r *Registry) Ensure(ctx context.Context, username string) error {
	key := r.couchURL + ":" + username
	r.mu.Lock()
	done := r.ensured[key]
	r.mu.Unlock()
	if done {
		return nil
	}
	if err := r.For(username).EnsureDatabase(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.ensured[key] = true
	r.mu.Unlock()
	return nil
}

// Reset clears both caches. Test hook.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = make(map[string]out.AuditStore)
	r.ensured = make(map[string]bool)
}
