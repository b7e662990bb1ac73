package dedup

import (
	"context"
	"sync"
)

// Index tracks content hashes already processed for a mailbox.
type Index interface {
	// Has reports whether hash has been recorded for mailbox.
	Has(ctx context.Context, mailbox, hash string) (bool, error)

	// Record marks hash as filed for mailbox and drops any pending file.
	Record(ctx context.Context, mailbox, hash string) error

	// Claim records hash for mailbox and reports whether this call recorded
	// it. Exactly one concurrent caller per (mailbox, hash) gets true.
	Claim(ctx context.Context, mailbox, hash string) (bool, error)

	// Forget removes hash so a later run can process the content again.
	Forget(ctx context.Context, mailbox, hash string) error

	// SetPending notes that the content of hash was stored as fileID but
	// not yet filed into its folder.
	SetPending(ctx context.Context, mailbox, hash, fileID string) error

	// TakePending returns and removes the pending file of hash. At most one
	// caller receives a given file; the others get "".
	TakePending(ctx context.Context, mailbox, hash string) (string, error)
}

// MemoryIndex is an in-process Index.
type MemoryIndex struct {
	mu sync.Mutex
	// seen maps mailbox -> hash -> pending file id ("" once filed)
	seen map[string]map[string]string
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{seen: make(map[string]map[string]string)}
}

func (m *MemoryIndex) Has(_ context.Context, mailbox, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[mailbox][hash]
	return ok, nil
}

func (m *MemoryIndex) Record(_ context.Context, mailbox, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(mailbox, hash, "")
	return nil
}

func (m *MemoryIndex) Claim(_ context.Context, mailbox, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[mailbox][hash]; ok {
		return false, nil
	}
	m.setLocked(mailbox, hash, "")
	return true, nil
}

func (m *MemoryIndex) Forget(_ context.Context, mailbox, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen[mailbox], hash)
	return nil
}

func (m *MemoryIndex) SetPending(_ context.Context, mailbox, hash, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(mailbox, hash, fileID)
	return nil
}

func (m *MemoryIndex) TakePending(_ context.Context, mailbox, hash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fileID, ok := m.seen[mailbox][hash]
	if !ok || fileID == "" {
		return "", nil
	}
	m.seen[mailbox][hash] = ""
	return fileID, nil
}

// Len returns the number of hashes recorded for mailbox.
func (m *MemoryIndex) Len(mailbox string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen[mailbox])
}

func (m *MemoryIndex) setLocked(mailbox, hash, fileID string) {
	hashes, ok := m.seen[mailbox]
	if !ok {
		hashes = make(map[string]string)
		m.seen[mailbox] = hashes
	}
	hashes[hash] = fileID
}
