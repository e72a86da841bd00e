package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Valid standard", "embeddings", true},
		{"Valid with underscore", "my_collection", true},
		{"Valid with numbers", "collection123", true},
		{"Valid short", "a", true},
		{"Valid max length", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_", true}, // 63 chars
		{"Invalid start with number", "1collection", false},
		{"Invalid special chars", "collection-name", false},
		{"Invalid space", "collection name", false},
		{"Invalid SQL injection", "users; DROP TABLE embeddings", false},
		{"Invalid empty", "", false},
		{"Invalid too long", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789__", false}, // 64 chars
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidTableName(tt.input), tt.input)
		})
	}
}

func TestBuildMetadataQuery(t *testing.T) {
	tests := []struct {
		name          string
		filter        map[string]any
		wantQuery     string
		wantArgsCount int
		wantErr       bool
	}{
		{
			name:          "Empty filter",
			filter:        map[string]any{},
			wantQuery:     "TRUE",
			wantArgsCount: 0,
		},
		{
			name:          "Single key-value",
			filter:        map[string]any{"source": "doc1"},
			wantQuery:     "metadata @> $1",
			wantArgsCount: 1,
		},
		{
			name: "$and operator",
			filter: map[string]any{
				"$and": []any{
					map[string]any{"a": 1},
					map[string]any{"b": 2},
				},
			},
			wantQuery:     "((metadata @> $1) AND (metadata @> $2))",
			wantArgsCount: 2,
		},
		{
			name: "$or operator",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"a": 1},
					map[string]any{"b": 2},
				},
			},
			wantQuery:     "((metadata @> $1) OR (metadata @> $2))",
			wantArgsCount: 2,
		},
		{
			name: "$not operator",
			filter: map[string]any{
				"$not": map[string]any{"a": 1},
			},
			wantQuery:     "NOT (metadata @> $1)",
			wantArgsCount: 1,
		},
		{
			name: "Nested operators",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"a": 1},
					map[string]any{
						"$and": []any{
							map[string]any{"b": 2},
							map[string]any{"c": 3},
						},
					},
				},
			},
			wantQuery:     "((metadata @> $1) OR (((metadata @> $2) AND (metadata @> $3))))",
			wantArgsCount: 3,
		},
		{
			name: "Implicit AND (multi-key map)",
			filter: map[string]any{
				"a": 1,
				"b": 2,
			},
			// The query string matches because placeholders populate in visited order
			wantQuery:     "metadata @> $1 AND metadata @> $2",
			wantArgsCount: 2,
		},
		{
			name: "Error: Value for $or is not a list",
			filter: map[string]any{
				"$or": "invalid",
			},
			wantErr: true,
		},
		{
			name: "Error: Item in $and list is not an object",
			filter: map[string]any{
				"$and": []any{
					"invalid",
				},
			},
			wantErr: true,
		},
		{
			name: "Error: Value for $not is not an object",
			filter: map[string]any{
				"$not": []any{"invalid"},
			},
			wantErr: true,
		},
		{
			name: "Error: Unknown operator",
			filter: map[string]any{
				"$regex": "x",
			},
			wantErr: true,
		},
		{
			name: "Edge Case: Empty list in operator (ignored)",
			filter: map[string]any{
				"$or": []any{},
			},
			wantQuery:     "TRUE",
			wantArgsCount: 0,
		},
		{
			name: "Edge Case: Operator with empty objects",
			filter: map[string]any{
				"$and": []any{
					map[string]any{},
				},
			},
			// recursive call returns TRUE, so we get (TRUE)
			wantQuery:     "((TRUE))",
			wantArgsCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []any
			gotQuery, err := buildMetadataQuery(tt.filter, &args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, gotQuery)
			assert.Len(t, args, tt.wantArgsCount)
		})
	}
}

func TestBuildMetadataQueryContinuesPlaceholders(t *testing.T) {
	args := []any{"embedding"}

	where, err := buildMetadataQuery(map[string]any{"source": "https://go.dev"}, &args)

	require.NoError(t, err)
	assert.Equal(t, "metadata @> $2", where)
	require.Len(t, args, 2)
	assert.JSONEq(t, `{"source": "https://go.dev"}`, string(args[1].([]byte)))
}
