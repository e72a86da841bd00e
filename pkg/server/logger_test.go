package server

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRecordAttrs(t *testing.T) {
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "Search failed", 0)
	r.AddAttrs(
		slog.String("query", "go"),
		slog.Any("error", errors.New("timeout")),
		slog.Group("round", slog.Int("n", 2)),
	)

	got := recordAttrs([]slog.Attr{slog.String("job_id", "j1")}, "", r)

	assert.Equal(t, map[string]any{
		"job_id":  "j1",
		"query":   "go",
		"error":   "timeout",
		"round.n": int64(2),
	}, got)
}

func TestRecordAttrsWithGroup(t *testing.T) {
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0)
	r.AddAttrs(slog.Bool("ok", true))

	got := recordAttrs(nil, "engine", r)

	assert.Equal(t, map[string]any{"engine.ok": true}, got)
}

func TestWithAttrsAndGroupDoNotMutateParent(t *testing.T) {
	h := NewDBLogHandler(nil, uuid.Nil, nil, nil)

	child := h.WithAttrs([]slog.Attr{slog.String("a", "1")}).WithGroup("g").(*DBLogHandler)
	grandchild := child.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*DBLogHandler)

	assert.Empty(t, h.attrs)
	assert.Len(t, child.attrs, 1)
	assert.Equal(t, "g", child.group)
	assert.Equal(t, "g.b", grandchild.attrs[1].Key)
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}
