package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tablekit/internal/docstore"
)

func TestAuditLog_RecordAndList(t *testing.T) {
	store := docstore.NewMemory()
	audit := NewAuditLog(store, "auditLog")

	tick := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	audit.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	ctx := WithRequestMeta(context.Background(), RequestMeta{IPAddress: "10.0.0.1", UserAgent: "test"})
	audit.Record(ctx, AuditLogParams{Action: ActionTableCreate, TableID: "t1", UserID: "u1"})
	audit.Record(ctx, AuditLogParams{Action: ActionRowAdd, TableID: "t1", UserID: "u1", RowID: "r1"})
	audit.Record(ctx, AuditLogParams{Action: ActionTableDelete, TableID: "t2", UserID: "u1"})

	entries, err := audit.List(ctx, AuditLogFilter{TableID: "t1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, ActionRowAdd, entries[0].Action, "newest first")
	assert.Equal(t, SeverityLow, entries[0].Severity)
	assert.Equal(t, "r1", entries[0].RowID)
	assert.Equal(t, "10.0.0.1", entries[0].IPAddress)
	assert.NotEmpty(t, entries[0].ID)

	critical, err := audit.List(ctx, AuditLogFilter{Action: ActionTableDelete})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, SeverityCritical, critical[0].Severity)
}

func TestAuditLog_NilIsNoop(t *testing.T) {
	var audit *AuditLog
	assert.NotPanics(t, func() {
		audit.Record(context.Background(), AuditLogParams{Action: ActionImport})
	})
}

func TestDecodeDocument_AcceptsBackendShapes(t *testing.T) {
	type target struct {
		Count   int       `mapstructure:"count"`
		Created time.Time `mapstructure:"created"`
	}

	var a target
	require.NoError(t, DecodeDocument(map[string]any{"count": 3.0, "created": "2026-10-18T09:00:00Z"}, &a))
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, 2026, a.Created.Year())

	var b target
	now := time.Now().UTC()
	require.NoError(t, DecodeDocument(map[string]any{"count": int64(4), "created": now}, &b))
	assert.Equal(t, 4, b.Count)
	assert.True(t, now.Equal(b.Created))

	var c target
	require.NoError(t, DecodeDocument(map[string]any{"created": nil}, &c))
	assert.True(t, c.Created.IsZero())
}
