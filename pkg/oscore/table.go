package oscore

import (
	"sync"
)

// DefaultMaxContexts is the default maximum number of contexts in a Table.
const DefaultMaxContexts = 16

// Table holds security contexts keyed by Recipient ID, which is the kid an
// incoming request carries. It is safe for concurrent use.
type Table struct {
	contexts    map[string]*SecurityContext
	maxContexts int

	mu sync.RWMutex
}

// NewTable creates a new context table.
// maxContexts limits the number of contexts (0 uses DefaultMaxContexts).
func NewTable(maxContexts int) *Table {
	if maxContexts <= 0 {
		maxContexts = DefaultMaxContexts
	}

	return &Table{
		contexts:    make(map[string]*SecurityContext),
		maxContexts: maxContexts,
	}
}

// Add adds a context to the table. Its Recipient ID must be unique.
func (t *Table) Add(ctx *SecurityContext) error {
	if ctx == nil {
		return ErrUnknownKID
	}
	key := string(ctx.recipientID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.contexts) >= t.maxContexts {
		return ErrContextTableFull
	}
	if _, exists := t.contexts[key]; exists {
		return ErrDuplicateContext
	}

	t.contexts[key] = ctx
	return nil
}

// Lookup finds the context for a kid. Returns nil if not found.
func (t *Table) Lookup(kid []byte) *SecurityContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.contexts[string(kid)]
}

// Remove removes the context for a kid and destroys it.
// No error is returned if the context doesn't exist.
func (t *Table) Remove(kid []byte) {
	t.mu.Lock()
	ctx, ok := t.contexts[string(kid)]
	delete(t.contexts, string(kid))
	t.mu.Unlock()

	if ok {
		ctx.Destroy()
	}
}

// Len returns the number of contexts in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.contexts)
}

// Clear removes and destroys every context.
func (t *Table) Clear() {
	t.mu.Lock()
	contexts := t.contexts
	t.contexts = make(map[string]*SecurityContext)
	t.mu.Unlock()

	for _, ctx := range contexts {
		ctx.Destroy()
	}
}
