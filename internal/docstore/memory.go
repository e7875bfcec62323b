package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It keeps insertion order per collection so
// unordered List results are stable, and it deep-copies documents on the way
// in and out.
type Memory struct {
	mu    sync.RWMutex
	colls map[string]*memCollection
}

type memCollection struct {
	order []string
	docs  map[string]map[string]any
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{colls: make(map[string]*memCollection)}
}

var _ Store = (*Memory)(nil)

func (m *Memory) coll(name string, create bool) *memCollection {
	c, ok := m.colls[name]
	if !ok && create {
		c = &memCollection{docs: make(map[string]map[string]any)}
		m.colls[name] = c
	}
	return c
}

func (m *Memory) put(collection, id string, data map[string]any) {
	c := m.coll(collection, true)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = copyMap(data)
}

// Insert implements Store.
func (m *Memory) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(CodeOf(err), "insert", collection, "", err)
	}
	if err := validateCollection("insert", collection); err != nil {
		return "", err
	}
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(collection, id, data)
	return id, nil
}

// Create implements Store.
func (m *Memory) Create(ctx context.Context, collection, id string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return newError(CodeOf(err), "create", collection, id, err)
	}
	if err := validateCollection("create", collection); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.coll(collection, false); c != nil {
		if _, exists := c.docs[id]; exists {
			return newError(CodeAlreadyExists, "create", collection, id, nil)
		}
	}
	m.put(collection, id, data)
	return nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return newError(CodeOf(err), "set", collection, id, err)
	}
	if err := validateCollection("set", collection); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(collection, id, data)
	return nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, newError(CodeOf(err), "get", collection, id, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.coll(collection, false)
	if c == nil {
		return Document{}, newError(CodeNotFound, "get", collection, id, nil)
	}
	data, ok := c.docs[id]
	if !ok {
		return Document{}, newError(CodeNotFound, "get", collection, id, nil)
	}
	return Document{ID: id, Data: copyMap(data)}, nil
}

// List implements Store.
func (m *Memory) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(CodeOf(err), "list", collection, "", err)
	}

	m.mu.RLock()
	c := m.coll(collection, false)
	var docs []Document
	if c != nil {
		docs = make([]Document, 0, len(c.order))
		for _, id := range c.order {
			data := c.docs[id]
			if !matches(data, q.Filters) {
				continue
			}
			docs = append(docs, Document{ID: id, Data: copyMap(data)})
		}
	}
	m.mu.RUnlock()

	if q.OrderBy != "" {
		docs = SortByField(docs, q.OrderBy)
	}
	return docs, nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return newError(CodeOf(err), "update", collection, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection, false)
	if c == nil {
		return newError(CodeNotFound, "update", collection, id, nil)
	}
	data, ok := c.docs[id]
	if !ok {
		return newError(CodeNotFound, "update", collection, id, nil)
	}
	for k, v := range fields {
		data[k] = copyValue(v)
	}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return newError(CodeOf(err), "delete", collection, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection, false)
	if c == nil {
		return nil
	}
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if len(c.docs) == 0 {
		delete(m.colls, collection)
	}
	return nil
}

// Collections implements Store.
func (m *Memory) Collections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(CodeOf(err), "collections", "", "", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.colls))
	for name, c := range m.colls {
		if len(c.docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !equalValues(v, f.Value) {
			return false
		}
	}
	return true
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyMap(item)
		}
		return out
	default:
		return val
	}
}

// String describes the store for logs.
func (m *Memory) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("memory(%d collections)", len(m.colls))
}
