package docstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Options selects and configures a backend.
type Options struct {
	Backend          string
	DatabaseURL      string
	Pool             PoolOptions
	FirestoreProject string
}

// Open constructs the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		slog.Warn("using in-memory document store; data is lost on restart")
		return NewMemory(), nil
	case BackendPostgres:
		return NewPostgres(ctx, opts.DatabaseURL, opts.Pool)
	case BackendFirestore:
		fs, err := NewFirestore(ctx, opts.FirestoreProject)
		if err != nil {
			return nil, err
		}
		slog.Info("document store connected", "backend", "firestore", "project", opts.FirestoreProject)
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown document store backend %q", opts.Backend)
	}
}
