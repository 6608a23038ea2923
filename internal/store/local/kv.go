package local

import (
	"context"
	"sync"
)

// KV - локальное хранилище устройства: строка по строковому ключу.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Namespaces выдаёт KV отдельного устройства.
type Namespaces interface {
	Namespace(name string) KV
}

// MemoryKV - KV в памяти.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// MemoryNamespaces - набор MemoryKV по устройствам.
type MemoryNamespaces struct {
	mu  sync.Mutex
	kvs map[string]*MemoryKV
}

func NewMemoryNamespaces() *MemoryNamespaces {
	return &MemoryNamespaces{kvs: make(map[string]*MemoryKV)}
}

func (m *MemoryNamespaces) Namespace(name string) KV {
	m.mu.Lock()
	defer m.mu.Unlock()
	kv, ok := m.kvs[name]
	if !ok {
		kv = NewMemoryKV()
		m.kvs[name] = kv
	}
	return kv
}
