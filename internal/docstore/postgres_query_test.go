package docstore

import (
	"sort"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildListQuery(t *testing.T) {
	query, args, err := buildListQuery("userTables", Query{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT id, data FROM documents WHERE collection = $1 ORDER BY seq`, query)
	assert.Equal(t, []any{"userTables"}, args)

	query, args, err = buildListQuery("rows", Query{
		Filters: []Filter{{Field: "userId", Value: "u1"}},
		OrderBy: "serialNo",
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT id, data FROM documents WHERE collection = $1 AND data @> $2::jsonb AND data ? $3 ORDER BY data -> $3, seq`,
		query)
	assert.Equal(t, []any{"rows", `{"userId":"u1"}`, "serialNo"}, args)
}

func TestEncodeDataTimesSortAsText(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	times := []time.Time{
		base,
		base.Add(100 * time.Millisecond),
		base.Add(120 * time.Millisecond),
		base.Add(time.Second),
	}

	var encoded []string
	for _, ts := range times {
		raw, err := encodeData(map[string]any{
			"createdAt": ts,
			"meta":      map[string]any{"at": ts},
		})
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(raw, &doc))
		s, ok := doc["createdAt"].(string)
		require.True(t, ok)
		assert.Len(t, s, len("2024-05-01T10:00:00.000000000Z"))
		assert.Equal(t, s, doc["meta"].(map[string]any)["at"])

		parsed, err := time.Parse(time.RFC3339Nano, s)
		require.NoError(t, err)
		assert.True(t, parsed.Equal(ts))
		encoded = append(encoded, s)
	}
	assert.True(t, sort.StringsAreSorted(encoded), "%v", encoded)
}
