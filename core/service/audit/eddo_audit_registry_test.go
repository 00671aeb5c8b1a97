package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eddo_server/core/domain"
	"eddo_server/core/port/out"
)

type countingStore struct {
	ensures int
}

func (c *countingStore) EnsureDatabase(ctx context.Context) error {
	c.ensures++
	return nil
}

func (c *countingStore) Insert(ctx context.Context, entry *domain.AuditEntry) error { return nil }

func (c *countingStore) List(ctx context.Context, opts out.AuditListOptions) (*out.AuditPage, error) {
	return &out.AuditPage{}, nil
}

func (c *countingStore) GetByIDs(ctx context.Context, ids []string) ([]*domain.AuditEntry, error) {
	return nil, nil
}

func (c *countingStore) ListBySource(ctx context.Context, perSource int) (map[domain.AuditSource][]*domain.AuditEntry, error) {
	return nil, nil
}

func TestRegistryMemoizesPerUser(t *testing.T) {
	built := 0
	registry := NewRegistry("http://couch:5984", func(username string) out.AuditStore {
		built++
		return &countingStore{}
	})

	first := registry.For("alice")
	again := registry.For("alice")
	other := registry.For("bob")

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, built)
}

func TestRegistryEnsuresOncePerProcess(t *testing.T) {
	store := &countingStore{}
	registry := NewRegistry("http://couch:5984", func(username string) out.AuditStore {
		return store
	})

	ctx := context.Background()
	require.NoError(t, registry.Ensure(ctx, "alice"))
	require.NoError(t, registry.Ensure(ctx, "alice"))
	require.NoError(t, registry.Ensure(ctx, "alice"))

	assert.Equal(t, 1, store.ensures)
}

func TestRegistryReset(t *testing.T) {
	built := 0
	registry := NewRegistry("http://couch:5984", func(username string) out.AuditStore {
		built++
		return &countingStore{}
	})

	registry.For("alice")
	registry.Reset()
	registry.For("alice")

	assert.Equal(t, 2, built)
}
