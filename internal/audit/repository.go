package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangaykms/barangaykms/internal/tenancy"
)

// Repository reads back rows from audit_logs. Writes go through
// shared.AuditLogger; this side is query-only.
type Repository interface {
	Timeline(ctx context.Context, scope tenancy.Scope, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Timeline(ctx context.Context, scope tenancy.Scope, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	where := ` FROM audit_logs WHERE TRUE`
	args := []any{}

	if !filters.From.IsZero() {
		args = append(args, filters.From)
		where += ` AND occurred_at >= $` + strconv.Itoa(len(args))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		where += ` AND occurred_at < $` + strconv.Itoa(len(args))
	}
	if a := strings.TrimSpace(filters.Actor); a != "" {
		args = append(args, a)
		where += ` AND actor = $` + strconv.Itoa(len(args))
	}
	if e := strings.TrimSpace(filters.Entity); e != "" {
		args = append(args, e)
		where += ` AND entity = $` + strconv.Itoa(len(args))
	}
	if a := strings.TrimSpace(filters.Action); a != "" {
		args = append(args, a)
		where += ` AND action = $` + strconv.Itoa(len(args))
	}
	where, args, ok := tenancy.AppendScopeSQL(where, args, scope, "barangay_id")
	if !ok {
		return nil, nil
	}

	query := `SELECT occurred_at, actor, action, entity, entity_id, barangay_id, meta` + where + ` ORDER BY occurred_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		if offset > 0 {
			args = append(args, offset)
			query += ` OFFSET $` + strconv.Itoa(len(args))
		}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			at   time.Time
			meta []byte
		)
		if err := rows.Scan(&at, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &row.BarangayID, &meta); err != nil {
			return nil, err
		}
		row.At = at
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &row.Meta)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
