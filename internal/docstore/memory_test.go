package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Insert(ctx, "people", map[string]any{"name": "Ada", "age": 36.0})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := m.Get(ctx, "people", id)
	require.NoError(t, err)
	assert.Equal(t, "Ada", doc.Data["name"])

	require.NoError(t, m.Update(ctx, "people", id, map[string]any{"age": 37.0}))
	doc, err = m.Get(ctx, "people", id)
	require.NoError(t, err)
	if diff := cmp.Diff(map[string]any{"name": "Ada", "age": 37.0}, doc.Data); diff != "" {
		t.Errorf("merged document mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, m.Set(ctx, "people", id, map[string]any{"name": "Grace"}))
	doc, err = m.Get(ctx, "people", id)
	require.NoError(t, err)
	assert.NotContains(t, doc.Data, "age", "set replaces the full value set")

	require.NoError(t, m.Delete(ctx, "people", id))
	_, err = m.Get(ctx, "people", id)
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, m.Delete(ctx, "people", id), "deleting a missing document is not an error")
}

func TestMemoryUpdateMissing(t *testing.T) {
	err := NewMemory().Update(context.Background(), "c", "nope", map[string]any{"a": 1})
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestMemoryCreateIsExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Create(ctx, "_system", "bootstrap", map[string]any{"by": "a"}))
	err := m.Create(ctx, "_system", "bootstrap", map[string]any{"by": "b"})
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	doc, err := m.Get(ctx, "_system", "bootstrap")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Data["by"])
}

func TestMemoryListFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, d := range []map[string]any{
		{"owner": "u1", "serialNo": 3.0},
		{"owner": "u2", "serialNo": 1.0},
		{"owner": "u1", "serialNo": 1},
		{"owner": "u1"},
	} {
		_, err := m.Insert(ctx, "rows", d)
		require.NoError(t, err)
	}

	all, err := m.List(ctx, "rows", Query{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	owned, err := m.List(ctx, "rows", Where("owner", "u1"))
	require.NoError(t, err)
	assert.Len(t, owned, 3)

	ordered, err := m.List(ctx, "rows", Query{Filters: []Filter{{Field: "owner", Value: "u1"}}, OrderBy: "serialNo"})
	require.NoError(t, err)
	require.Len(t, ordered, 2, "documents without the order field are excluded")
	assert.Equal(t, 1, ordered[0].Data["serialNo"])
	assert.Equal(t, 3.0, ordered[1].Data["serialNo"])
}

func TestMemoryCopiesDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	in := map[string]any{"tags": []any{"a"}}
	id, err := m.Insert(ctx, "c", in)
	require.NoError(t, err)
	in["tags"].([]any)[0] = "mutated"

	doc, err := m.Get(ctx, "c", id)
	require.NoError(t, err)
	doc.Data["tags"].([]any)[0] = "also mutated"

	again, err := m.Get(ctx, "c", id)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, again.Data["tags"])
}

func TestMemoryCollections(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Insert(ctx, "b", map[string]any{})
	require.NoError(t, err)
	_, err = m.Insert(ctx, "a", map[string]any{})
	require.NoError(t, err)

	names, err := m.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, m.Delete(ctx, "b", id))
	names, err = m.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names, "emptied collections disappear")
}

func TestMemoryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := NewMemory().Insert(ctx, "c", map[string]any{})
	assert.Equal(t, CodeTimeout, CodeOf(err))
}

func TestInvalidCollectionName(t *testing.T) {
	_, err := NewMemory().Insert(context.Background(), "a/b", map[string]any{})
	assert.Equal(t, CodeInternal, CodeOf(err))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeTimeout, CodeOf(context.DeadlineExceeded))
	assert.Equal(t, CodeQuotaExceeded, CodeOf(Failure(CodeQuotaExceeded, "insert")))
}

func TestFaulty(t *testing.T) {
	ctx := context.Background()
	f := NewFaulty(NewMemory())

	f.Arm(func(op, collection, id string, data map[string]any) error {
		if op == "insert" && data["fail"] == true {
			return Failure(CodeUnavailable, op)
		}
		return nil
	})

	_, err := f.Insert(ctx, "c", map[string]any{"fail": true})
	assert.Equal(t, CodeUnavailable, CodeOf(err))

	_, err = f.Insert(ctx, "c", map[string]any{"fail": false})
	assert.NoError(t, err)

	f.Arm(nil)
	_, err = f.Insert(ctx, "c", map[string]any{"fail": true})
	assert.NoError(t, err)
}

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare(nil, 1.0))
	assert.Negative(t, Compare(1, 2.5))
	assert.Zero(t, Compare(int64(2), 2.0))
	assert.Positive(t, Compare("b", "a"))
	assert.Negative(t, Compare(false, true))
}
