package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is a Store backed by Cloud Firestore. Set FIRESTORE_EMULATOR_HOST
// to run against the local emulator.
type Firestore struct {
	client *firestore.Client
}

var _ Store = (*Firestore)(nil)

// NewFirestore connects to the given Google Cloud project.
func NewFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("initializing firestore client: %w", err)
	}
	return &Firestore{client: client}, nil
}

// Insert implements Store.
func (f *Firestore) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateCollection("insert", collection); err != nil {
		return "", err
	}
	ref, _, err := f.client.Collection(collection).Add(ctx, data)
	if err != nil {
		return "", fromGRPC(err, "insert", collection, "")
	}
	return ref.ID, nil
}

// Create implements Store.
func (f *Firestore) Create(ctx context.Context, collection, id string, data map[string]any) error {
	if err := validateCollection("create", collection); err != nil {
		return err
	}
	if _, err := f.client.Collection(collection).Doc(id).Create(ctx, data); err != nil {
		return fromGRPC(err, "create", collection, id)
	}
	return nil
}

// Set implements Store.
func (f *Firestore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := validateCollection("set", collection); err != nil {
		return err
	}
	if _, err := f.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return fromGRPC(err, "set", collection, id)
	}
	return nil
}

// Get implements Store.
func (f *Firestore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return Document{}, fromGRPC(err, "get", collection, id)
	}
	return Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

// List implements Store.
func (f *Firestore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	query := f.client.Collection(collection).Query
	for _, flt := range q.Filters {
		query = query.WherePath(firestore.FieldPath{flt.Field}, "==", flt.Value)
	}
	if q.OrderBy != "" {
		query = query.OrderByPath(firestore.FieldPath{q.OrderBy}, firestore.Asc)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fromGRPC(err, "list", collection, "")
		}
		docs = append(docs, Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

// Update implements Store.
func (f *Firestore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	if _, err := f.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return fromGRPC(err, "update", collection, id)
	}
	return nil
}

// Delete implements Store.
func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	if _, err := f.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fromGRPC(err, "delete", collection, id)
	}
	return nil
}

// Collections implements Store.
func (f *Firestore) Collections(ctx context.Context) ([]string, error) {
	iter := f.client.Collections(ctx)
	var names []string
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fromGRPC(err, "collections", "", "")
		}
		names = append(names, ref.ID)
	}
	return names, nil
}

// Close implements Store.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func fromGRPC(err error, op, collection, id string) error {
	var code Code
	switch status.Code(err) {
	case codes.NotFound:
		code = CodeNotFound
	case codes.AlreadyExists:
		code = CodeAlreadyExists
	case codes.PermissionDenied:
		code = CodePermissionDenied
	case codes.Unauthenticated:
		code = CodeUnauthenticated
	case codes.Unavailable, codes.Canceled:
		code = CodeUnavailable
	case codes.ResourceExhausted:
		code = CodeQuotaExceeded
	case codes.DeadlineExceeded:
		code = CodeTimeout
	default:
		code = CodeOf(err)
	}
	return newError(code, op, collection, id, err)
}
