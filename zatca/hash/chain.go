package hash

import (
	"sync"

	"github.com/alapierre/go-zatca-client/zatca"
	"github.com/alapierre/go-zatca-client/zatca/model"
	"github.com/alapierre/go-zatca-client/zatca/mutex"
)

// Link builds the link that follows prev. A nil prev starts a new chain at
// counter 1 with GenesisHash as the previous hash.
func Link(prev *model.InvoiceChainLink, uuid, invoiceHash string) model.InvoiceChainLink {
	if prev == nil {
		return model.InvoiceChainLink{
			UUID:                uuid,
			InvoiceHash:         invoiceHash,
			PreviousInvoiceHash: GenesisHash,
			CounterValue:        1,
		}
	}
	return model.InvoiceChainLink{
		UUID:                uuid,
		InvoiceHash:         invoiceHash,
		PreviousInvoiceHash: prev.InvoiceHash,
		CounterValue:        prev.CounterValue + 1,
	}
}

// ValidateLink checks next against its predecessor. With a nil prev, next
// must reference GenesisHash.
func ValidateLink(prev *model.InvoiceChainLink, next model.InvoiceChainLink) error {
	if next.UUID == "" || next.InvoiceHash == "" {
		return zatca.ErrChainBroken.Detail("link has no uuid or invoice hash")
	}

	if prev == nil {
		if next.PreviousInvoiceHash != GenesisHash {
			return zatca.ErrChainBroken.Detail("first link of %s does not reference the genesis hash", next.UUID)
		}
		if next.CounterValue < 1 {
			return zatca.ErrChainBroken.Detail("first link of %s has counter 0", next.UUID)
		}
		return nil
	}

	if next.PreviousInvoiceHash != prev.InvoiceHash {
		return zatca.ErrChainBroken.Detail("%s does not reference the hash of %s", next.UUID, prev.UUID)
	}
	if next.CounterValue != prev.CounterValue+1 {
		return zatca.ErrChainBroken.Detail("%s has counter %d, expected %d", next.UUID, next.CounterValue, prev.CounterValue+1)
	}
	return nil
}

// ValidateChain checks a whole sequence starting at genesis.
func ValidateChain(links []model.InvoiceChainLink) error {
	var prev *model.InvoiceChainLink
	for i := range links {
		if err := ValidateLink(prev, links[i]); err != nil {
			return err
		}
		prev = &links[i]
	}
	return nil
}

// ChainKey identifies one chain.
func ChainKey(tenant, terminal string) string {
	return tenant + "/" + terminal
}

// Chain is an in-memory chain head store. Advances on the same key run one
// at a time; different keys proceed in parallel.
type Chain struct {
	locks mutex.KeyedMutex[string]

	mu    sync.RWMutex
	heads map[string]model.InvoiceChainLink
}

func NewChain() *Chain {
	return &Chain{heads: make(map[string]model.InvoiceChainLink)}
}

// Head returns the last link of the chain, if any.
func (c *Chain) Head(key string) (model.InvoiceChainLink, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.heads[key]
	return h, ok
}

// Advance calls next with the current head (nil at genesis) while holding
// the chain's lock, and stores the resulting link. The head is unchanged
// when next fails.
func (c *Chain) Advance(key string, next func(prev *model.InvoiceChainLink) (uuid, invoiceHash string, err error)) (model.InvoiceChainLink, error) {
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	var prev *model.InvoiceChainLink
	if h, ok := c.Head(key); ok {
		prev = &h
	}

	uuid, invoiceHash, err := next(prev)
	if err != nil {
		return model.InvoiceChainLink{}, err
	}

	link := Link(prev, uuid, invoiceHash)

	c.mu.Lock()
	c.heads[key] = link
	c.mu.Unlock()

	return link, nil
}

// Append adds an already hashed invoice to the chain.
func (c *Chain) Append(key, uuid, invoiceHash string) model.InvoiceChainLink {
	link, _ := c.Advance(key, func(*model.InvoiceChainLink) (string, string, error) {
		return uuid, invoiceHash, nil
	})
	return link
}

// Entry is an invoice waiting to be linked.
type Entry struct {
	UUID        string
	InvoiceHash string
}

// Links builds consecutive links for entries, starting after prev.
func Links(prev *model.InvoiceChainLink, entries []Entry) []model.InvoiceChainLink {
	links := make([]model.InvoiceChainLink, 0, len(entries))
	for _, en := range entries {
		link := Link(prev, en.UUID, en.InvoiceHash)
		links = append(links, link)
		prev = &links[len(links)-1]
	}
	return links
}

// AppendAll links entries in order and moves the head to the last of them
// in one step. Other appends on the key never interleave.
func (c *Chain) AppendAll(key string, entries []Entry) []model.InvoiceChainLink {
	if len(entries) == 0 {
		return nil
	}

	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	var prev *model.InvoiceChainLink
	if h, ok := c.Head(key); ok {
		prev = &h
	}
	links := Links(prev, entries)

	c.mu.Lock()
	c.heads[key] = links[len(links)-1]
	c.mu.Unlock()

	return links
}

// Restore sets the head of a chain, typically from a persisted last link,
// so that the next Append continues after it.
func (c *Chain) Restore(key string, head model.InvoiceChainLink) error {
	if head.CounterValue == 0 || head.InvoiceHash == "" {
		return zatca.ErrChainBroken.Detail("restored head needs a counter and an invoice hash")
	}

	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	c.mu.Lock()
	c.heads[key] = head
	c.mu.Unlock()
	return nil
}
