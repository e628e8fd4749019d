package knowledge

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

// Repository defines persistence for knowledge entries.
type Repository interface {
	List(ctx context.Context, scope tenancy.Scope, kind Kind, filters ListFilters) ([]Entry, int, error)
	Get(ctx context.Context, scope tenancy.Scope, kind Kind, id int64) (Entry, error)
	Create(ctx context.Context, e Entry) (Entry, error)
	Update(ctx context.Context, e Entry) error
	SetStatus(ctx context.Context, id int64, status Status) error
	SetArchived(ctx context.Context, id int64, archived bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, kind, barangay_id, title, summary, body, tags, status, created_by, is_active, is_archived, created_at, updated_at`

func (r *repository) List(ctx context.Context, scope tenancy.Scope, kind Kind, filters ListFilters) ([]Entry, int, error) {
	where := ` FROM knowledge_entries WHERE is_active AND kind = $1`
	args := []any{string(kind)}

	if filters.IncludeArchived {
		where += ` AND is_archived`
	} else {
		where += ` AND NOT is_archived`
	}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (title ILIKE $` + n + ` OR summary ILIKE $` + n + ` OR body ILIKE $` + n + `)`
	}
	where, args, ok := tenancy.AppendScopeSQL(where, args, scope, "barangay_id")
	if !ok {
		return nil, 0, nil
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + entryColumns + where + ` ORDER BY updated_at DESC`
	if filters.PerPage > 0 {
		args = append(args, filters.PerPage)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		offset := (filters.Page - 1) * filters.PerPage
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, scope tenancy.Scope, kind Kind, id int64) (Entry, error) {
	where := ` FROM knowledge_entries WHERE is_active AND kind = $1 AND id = $2`
	args := []any{string(kind), id}
	where, args, ok := tenancy.AppendScopeSQL(where, args, scope, "barangay_id")
	if !ok {
		return Entry{}, shared.ErrNotFound
	}
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *repository) Create(ctx context.Context, e Entry) (Entry, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO knowledge_entries (kind, barangay_id, title, summary, body, tags, status, created_by, is_active, is_archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, FALSE, NOW(), NOW())
		 RETURNING `+entryColumns,
		string(e.Kind), e.BarangayID, e.Title, e.Summary, e.Body, e.Tags, string(e.Status), e.CreatedBy).
		Scan(entryTargets(&e)...)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Update never touches barangay_id, kind or status; status moves through
// SetStatus so the review transitions stay in one place.
func (r *repository) Update(ctx context.Context, e Entry) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE knowledge_entries SET title=$2, summary=$3, body=$4, tags=$5, updated_at=NOW()
		 WHERE id=$1 AND is_active`,
		e.ID, e.Title, e.Summary, e.Body, e.Tags)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE knowledge_entries SET status=$2, updated_at=NOW() WHERE id=$1 AND is_active`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetArchived(ctx context.Context, id int64, archived bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE knowledge_entries SET is_archived=$2, updated_at=NOW() WHERE id=$1 AND is_active`, id, archived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func entryTargets(e *Entry) []any {
	return []any{&e.ID, (*string)(&e.Kind), &e.BarangayID, &e.Title, &e.Summary, &e.Body, &e.Tags, (*string)(&e.Status), &e.CreatedBy, &e.IsActive, &e.IsArchived, &e.CreatedAt, &e.UpdatedAt}
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	if err := row.Scan(entryTargets(&e)...); err != nil {
		return Entry{}, err
	}
	return e, nil
}
