package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-search/pkg/database"
)

// DBLogHandler is a slog.Handler that writes records to research_logs for one
// job, and forwards them to next when set.
type DBLogHandler struct {
	DB    *database.PostgresDB
	JobID uuid.UUID

	level slog.Leveler
	attrs []slog.Attr
	group string
	next  slog.Handler
}

func NewDBLogHandler(db *database.PostgresDB, jobID uuid.UUID, level slog.Leveler, next slog.Handler) *DBLogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &DBLogHandler{
		DB:    db,
		JobID: jobID,
		level: level,
		next:  next,
	}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		_ = h.next.Handle(ctx, r.Clone())
	}

	metaJSON, err := json.Marshal(recordAttrs(h.attrs, h.group, r))
	if err != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	// Logs must persist even when the job context is cancelled.
	_, err = h.DB.Pool.Exec(context.Background(), query, h.JobID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.group, attrs)...)
	if h.next != nil {
		c.next = h.next.WithAttrs(attrs)
	}
	return &c
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	if h.next != nil {
		c.next = h.next.WithGroup(name)
	}
	return &c
}

// recordAttrs flattens handler and record attributes into one map. Grouped
// keys are dotted.
func recordAttrs(base []slog.Attr, group string, r slog.Record) map[string]any {
	out := make(map[string]any, len(base)+r.NumAttrs())
	for _, a := range base {
		addAttr(out, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(out, group, a)
		return true
	})
	return out
}

func addAttr(out map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(out, key, ga)
		}
		return
	}
	switch v := a.Value.Any().(type) {
	case error:
		out[key] = v.Error()
	default:
		out[key] = v
	}
}

func qualify(group string, attrs []slog.Attr) []slog.Attr {
	if group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: group + "." + a.Key, Value: a.Value}
	}
	return out
}
