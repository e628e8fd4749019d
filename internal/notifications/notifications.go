// Package notifications fans portal activity out to interested clients.
// Publishing is fire-and-forget over Redis pub/sub; a copy is stored for the
// in-app activity feed. Failures are logged and never fail the write path.
package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/barangaykms/barangaykms/internal/tenancy"
)

// Channel is the Redis pub/sub channel portal events are published on.
const Channel = "bkms:events"

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 50
)

// clampLimit normalises a caller-supplied feed size. The handler and the
// service both go through it so an oversized limit is capped, not reset.
func clampLimit(limit int) int {
	if limit < 1 {
		return defaultFeedLimit
	}
	if limit > maxFeedLimit {
		return maxFeedLimit
	}
	return limit
}

// Event describes one completed mutation.
type Event struct {
	Module     string `json:"module"`
	Action     string `json:"action"`
	EntityID   int64  `json:"entity_id"`
	Title      string `json:"title"`
	BarangayID *int64 `json:"barangay_id,omitempty"`
	Actor      string `json:"actor"`
	At         time.Time `json:"at"`
}

// Notification is one stored activity-feed row.
type Notification struct {
	ID         int64
	Module     string
	Action     string
	EntityID   int64
	Title      string
	BarangayID *int64
	Actor      string
	At         time.Time
}

// Service stores and publishes events and serves the activity feed.
type Service struct {
	pool   *pgxpool.Pool
	client *redis.Client
	logger *slog.Logger
}

// NewService constructs the notification service.
func NewService(pool *pgxpool.Pool, client *redis.Client, logger *slog.Logger) *Service {
	return &Service{pool: pool, client: client, logger: logger}
}

// Notify stores the event and publishes it. Both legs are best-effort: the
// surrounding write has already committed and must not be rolled back over a
// notification hiccup.
func (s *Service) Notify(ctx context.Context, ev Event) {
	if s == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if s.pool != nil {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO notifications (module, action, entity_id, title, barangay_id, actor, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ev.Module, ev.Action, ev.EntityID, ev.Title, ev.BarangayID, ev.Actor, ev.At)
		if err != nil && s.logger != nil {
			s.logger.Warn("store notification", slog.Any("error", err))
		}
	}
	if s.client != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = s.client.Publish(ctx, Channel, payload).Err()
		}
		if err != nil && s.logger != nil {
			s.logger.Warn("publish notification", slog.Any("error", err))
		}
	}
}

// Recent returns the newest feed rows visible to the principal. The scope
// comes from the guard; a deny scope yields an empty feed, never a raw
// session-driven query.
func (s *Service) Recent(ctx context.Context, p tenancy.Principal, limit int) ([]Notification, error) {
	limit = clampLimit(limit)
	scope := tenancy.ScopeForRead(p)
	query := `SELECT id, module, action, entity_id, title, barangay_id, actor, occurred_at
FROM notifications WHERE 1=1`
	args := []any{}
	query, args, ok := tenancy.AppendScopeSQL(query, args, scope, "barangay_id")
	if !ok {
		return nil, nil
	}
	query += " ORDER BY occurred_at DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var feed []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Module, &n.Action, &n.EntityID, &n.Title, &n.BarangayID, &n.Actor, &n.At); err != nil {
			return nil, err
		}
		feed = append(feed, n)
	}
	return feed, rows.Err()
}
