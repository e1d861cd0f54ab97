package persistence

import "sync"

// MemoryStore keeps values in a map guarded by a mutex. Values do not outlive the process.
type MemoryStore struct {
	mutex  sync.RWMutex
	values map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (store *MemoryStore) Get(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	value, found := store.values[key]
	return value, found, nil
}

// Set stores value under key.
func (store *MemoryStore) Set(key string, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.values[key] = value
	return nil
}

// Remove deletes key.
func (store *MemoryStore) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.values, key)
	return nil
}

// Close is a no-op.
func (store *MemoryStore) Close() error {
	return nil
}
