package docstore

import (
	"context"
	"sync"
)

// FaultFunc decides whether an operation fails. Returning nil lets it through.
type FaultFunc func(op, collection, id string, data map[string]any) error

// Faulty wraps a Store and injects failures into selected operations.
type Faulty struct {
	Store
	mu    sync.Mutex
	fault FaultFunc
}

// NewFaulty wraps inner with no faults armed.
func NewFaulty(inner Store) *Faulty {
	return &Faulty{Store: inner}
}

// Arm installs fn as the fault decision. A nil fn disarms.
func (f *Faulty) Arm(fn FaultFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault = fn
}

func (f *Faulty) check(op, collection, id string, data map[string]any) error {
	f.mu.Lock()
	fn := f.fault
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(op, collection, id, data)
}

func (f *Faulty) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := f.check("insert", collection, "", data); err != nil {
		return "", err
	}
	return f.Store.Insert(ctx, collection, data)
}

func (f *Faulty) Create(ctx context.Context, collection, id string, data map[string]any) error {
	if err := f.check("create", collection, id, data); err != nil {
		return err
	}
	return f.Store.Create(ctx, collection, id, data)
}

func (f *Faulty) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := f.check("set", collection, id, data); err != nil {
		return err
	}
	return f.Store.Set(ctx, collection, id, data)
}

func (f *Faulty) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := f.check("get", collection, id, nil); err != nil {
		return Document{}, err
	}
	return f.Store.Get(ctx, collection, id)
}

func (f *Faulty) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := f.check("list", collection, "", nil); err != nil {
		return nil, err
	}
	return f.Store.List(ctx, collection, q)
}

func (f *Faulty) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := f.check("update", collection, id, fields); err != nil {
		return err
	}
	return f.Store.Update(ctx, collection, id, fields)
}

func (f *Faulty) Delete(ctx context.Context, collection, id string) error {
	if err := f.check("delete", collection, id, nil); err != nil {
		return err
	}
	return f.Store.Delete(ctx, collection, id)
}

// Failure builds a classified error for fault injection.
func Failure(code Code, op string) error {
	return &Error{Code: code, Op: op}
}
