package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	sharedCache "github.com/davicafu/f360jobs/internal/shared/infra/platform/cache"
)

// DummyCache es una caché en memoria sin expiración, segura para concurrencia.
// El valor cero es utilizable.
type DummyCache struct {
	store map[string][]byte
	ttls  map[string]int
	mu    sync.RWMutex
	// FailWith hace que todas las operaciones devuelvan este error.
	FailWith error
}

// Verificación estática para asegurar que implementa la interfaz compartida.
var _ sharedCache.Cache = (*DummyCache)(nil)

var ErrCacheDown = errors.New("cache unavailable")

func NewDummyCache() *DummyCache {
	return &DummyCache{store: make(map[string][]byte)}
}

func (c *DummyCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.FailWith != nil {
		return false, c.FailWith
	}

	data, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *DummyCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWith != nil {
		return c.FailWith
	}

	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if c.store == nil {
		c.store = make(map[string][]byte)
	}
	if c.ttls == nil {
		c.ttls = make(map[string]int)
	}
	c.store[key] = data
	c.ttls[key] = ttlSecs
	return nil
}

func (c *DummyCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWith != nil {
		return c.FailWith
	}
	delete(c.store, key)
	return nil
}

// Has indica si la clave está en caché.
func (c *DummyCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.store[key]
	return ok
}

// TTL devuelve el ttlSecs con el que se guardó la clave por última vez.
func (c *DummyCache) TTL(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttls[key]
}
