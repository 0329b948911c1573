package client

import (
	"context"
	"sync"

	"auction-engine/internal/domain"
)

// StaticRegistry is an in-process domain.ServiceRegistry for setups without
// Redis, such as a client pointed at a single server.
type StaticRegistry struct {
	mutex   sync.RWMutex
	entries map[string]string
}

func NewStaticRegistry(entries map[string]string) *StaticRegistry {
	r := &StaticRegistry{entries: make(map[string]string, len(entries))}
	for name, address := range entries {
		r.entries[name] = address
	}
	return r
}

func (r *StaticRegistry) Register(ctx context.Context, name, address string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries[name] = address
	return nil
}

func (r *StaticRegistry) Lookup(ctx context.Context, name string) (string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	address, ok := r.entries[name]
	if !ok {
		return "", domain.NewNotFound("service", name)
	}
	return address, nil
}

func (r *StaticRegistry) Deregister(ctx context.Context, name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.entries, name)
	return nil
}
