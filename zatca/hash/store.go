package hash

import (
	"context"

	"github.com/alapierre/go-zatca-client/zatca/model"
)

// Store keeps the head of every chain. Appends must be atomic per key: two
// concurrent appends on one key never produce the same counter value, and
// AppendAll either links every entry or none.
type Store interface {
	Head(ctx context.Context, key string) (model.InvoiceChainLink, bool, error)
	Append(ctx context.Context, key, uuid, invoiceHash string) (model.InvoiceChainLink, error)
	AppendAll(ctx context.Context, key string, entries []Entry) ([]model.InvoiceChainLink, error)
	Restore(ctx context.Context, key string, head model.InvoiceChainLink) error
}

// MemoryStore adapts a Chain to Store. Heads are lost with the process.
type MemoryStore struct {
	chain *Chain
}

func NewMemoryStore(chain *Chain) *MemoryStore {
	if chain == nil {
		chain = NewChain()
	}
	return &MemoryStore{chain: chain}
}

func (m *MemoryStore) Head(_ context.Context, key string) (model.InvoiceChainLink, bool, error) {
	h, ok := m.chain.Head(key)
	return h, ok, nil
}

func (m *MemoryStore) Append(_ context.Context, key, uuid, invoiceHash string) (model.InvoiceChainLink, error) {
	return m.chain.Append(key, uuid, invoiceHash), nil
}

func (m *MemoryStore) AppendAll(_ context.Context, key string, entries []Entry) ([]model.InvoiceChainLink, error) {
	return m.chain.AppendAll(key, entries), nil
}

func (m *MemoryStore) Restore(_ context.Context, key string, head model.InvoiceChainLink) error {
	return m.chain.Restore(key, head)
}
