package store

import "sync"

// MemoryStore keeps the encoded snapshot in memory. Saves go through the
// same JSON encoding as FileStore.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	// Err, when set, is returned by Save.
	Err error
}

// NewMemoryStore returns an empty store. Pass seed bytes to start from a
// previously encoded snapshot.
func NewMemoryStore(seed []byte) *MemoryStore {
	return &MemoryStore{data: seed}
}

func (m *MemoryStore) Load(dst *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return ErrNoSnapshot
	}
	return Decode(m.data, dst)
}

func (m *MemoryStore) Save(snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

// Bytes returns the last saved encoding.
func (m *MemoryStore) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Saves reports how many successful saves happened.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
