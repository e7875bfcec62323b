package tables

// orphans.go reports backing collections that no table metadata points to.
//
// Table deletion removes metadata before sweeping rows, so a failed sweep
// leaves documents nobody can reach. The scanner only reports them; it
// never deletes anything.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/tablekit/internal/access"
	"github.com/JonMunkholm/tablekit/internal/docstore"
)

// DefaultOrphanSchedule runs the scan hourly.
const DefaultOrphanSchedule = "@hourly"

// Orphan is a collection holding documents without table metadata.
type Orphan struct {
	Collection string `json:"collection"`
	Documents  int    `json:"documents"`
}

// FindOrphans lists orphaned collections. System collections are skipped.
func (s *Service) FindOrphans(ctx context.Context) ([]Orphan, error) {
	names, err := s.store.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	tables, err := s.store.List(ctx, s.metaColl, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	owned := make(map[string]bool, len(tables))
	for _, doc := range tables {
		if coll, ok := doc.Data["collectionName"].(string); ok {
			owned[coll] = true
		}
	}

	orphans := []Orphan{}
	for _, name := range names {
		if owned[name] || s.reserved[name] {
			continue
		}
		docs, err := s.store.List(ctx, name, docstore.Query{})
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		if len(docs) == 0 {
			continue
		}
		orphans = append(orphans, Orphan{Collection: name, Documents: len(docs)})
	}
	s.metrics.Orphans(len(orphans))
	return orphans, nil
}

// Orphans is FindOrphans for an admin caller.
func (s *Service) Orphans(ctx context.Context) ([]Orphan, error) {
	if _, err := access.Require(ctx, "list orphans", access.RoleAdmin); err != nil {
		return nil, err
	}
	return s.FindOrphans(ctx)
}

// OrphanScanner runs FindOrphans on a cron schedule.
type OrphanScanner struct {
	svc     *Service
	cron    *cron.Cron
	timeout time.Duration
}

// NewOrphanScanner schedules scans with a standard five-field cron expression or
// a descriptor such as "@hourly".
func NewOrphanScanner(svc *Service, schedule string) (*OrphanScanner, error) {
	if schedule == "" {
		schedule = DefaultOrphanSchedule
	}
	sc := &OrphanScanner{
		svc:     svc,
		cron:    cron.New(),
		timeout: 5 * time.Minute,
	}
	if _, err := sc.cron.AddFunc(schedule, sc.scan); err != nil {
		return nil, fmt.Errorf("orphan schedule %q: %w", schedule, err)
	}
	return sc, nil
}

// Start begins scheduling in the background.
func (sc *OrphanScanner) Start() {
	slog.Info("orphan scanner started", "entries", len(sc.cron.Entries()))
	sc.cron.Start()
}

// Stop stops scheduling and waits for a running scan to finish or ctx to end.
func (sc *OrphanScanner) Stop(ctx context.Context) {
	done := sc.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	slog.Info("orphan scanner stopped")
}

func (sc *OrphanScanner) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), sc.timeout)
	defer cancel()

	start := time.Now()
	orphans, err := sc.svc.FindOrphans(ctx)
	if err != nil {
		slog.Error("orphan scan failed", "error", err)
		return
	}
	for _, o := range orphans {
		slog.Warn("orphaned collection", "collection", o.Collection, "documents", o.Documents)
	}
	slog.Info("orphan scan completed",
		"orphans", len(orphans),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
