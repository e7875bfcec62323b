package core

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchParallelism bounds concurrent per-document writes.
const DefaultBatchParallelism = 8

// BatchExecutor runs one write per document with bounded parallelism and
// records each outcome. It never aborts early: a failing document does not
// cancel its siblings.
type BatchExecutor struct {
	limit int
}

// NewBatchExecutor creates an executor running at most limit writes at once.
func NewBatchExecutor(limit int) *BatchExecutor {
	if limit <= 0 {
		limit = DefaultBatchParallelism
	}
	return &BatchExecutor{limit: limit}
}

// Run applies fn to every id and returns the per-document result. Completed
// and Failed preserve the order of ids.
func (b *BatchExecutor) Run(ctx context.Context, op string, ids []string, fn func(ctx context.Context, id string) error) BatchResult {
	outcomes := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(b.limit)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = err
				return nil
			}
			outcomes[i] = fn(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{
		Op:        op,
		Total:     len(ids),
		Completed: make([]string, 0, len(ids)),
	}
	for i, err := range outcomes {
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{DocID: ids[i], Error: err.Error(), Err: err})
			continue
		}
		result.Completed = append(result.Completed, ids[i])
	}
	result.Succeeded = len(result.Completed)

	if !result.OK() {
		slog.Warn("batch partially failed",
			"op", op,
			"total", result.Total,
			"succeeded", result.Succeeded,
			"failed", len(result.Failed),
		)
	}
	return result
}
