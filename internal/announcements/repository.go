package announcements

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
)

// Repository defines persistence for announcements. Every read takes the
// guard's scope; barangay_id is never updated after insert.
type Repository interface {
	List(ctx context.Context, scope tenancy.Scope, filters ListFilters) ([]Announcement, int, error)
	Get(ctx context.Context, scope tenancy.Scope, id int64) (Announcement, error)
	Create(ctx context.Context, a Announcement) (Announcement, error)
	Update(ctx context.Context, a Announcement) error
	SetArchived(ctx context.Context, id int64, archived bool) error
	ArchiveExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const announcementColumns = `id, barangay_id, title, body, priority, is_pinned, published_at, expires_at, created_by, is_active, is_archived, created_at, updated_at`

func (r *repository) List(ctx context.Context, scope tenancy.Scope, filters ListFilters) ([]Announcement, int, error) {
	where := ` FROM announcements WHERE is_active`
	args := []any{}

	if filters.IncludeArchived {
		where += ` AND is_archived`
	} else {
		where += ` AND NOT is_archived`
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (title ILIKE $` + n + ` OR body ILIKE $` + n + `)`
	}
	where, args, ok := tenancy.AppendScopeSQL(where, args, scope, "barangay_id")
	if !ok {
		return nil, 0, nil
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + announcementColumns + where + ` ORDER BY is_pinned DESC, priority = 'high' DESC, published_at DESC`
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

	var items []Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, scope tenancy.Scope, id int64) (Announcement, error) {
	where := ` FROM announcements WHERE is_active AND id = $1`
	args := []any{id}
	where, args, ok := tenancy.AppendScopeSQL(where, args, scope, "barangay_id")
	if !ok {
		return Announcement{}, shared.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+announcementColumns+where, args...)
	a, err := scanAnnouncement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Announcement{}, shared.ErrNotFound
		}
		return Announcement{}, err
	}
	return a, nil
}

func (r *repository) Create(ctx context.Context, a Announcement) (Announcement, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO announcements (barangay_id, title, body, priority, is_pinned, published_at, expires_at, created_by, is_active, is_archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7, $8, TRUE, FALSE, NOW(), NOW())
		 RETURNING `+announcementColumns,
		a.BarangayID, a.Title, a.Body, string(a.Priority), a.IsPinned, nilTime(a.PublishedAt), a.ExpiresAt, a.CreatedBy).
		Scan(scanTargets(&a)...)
	if err != nil {
		return Announcement{}, err
	}
	return a, nil
}

// Update never touches barangay_id: tenant reassignment is forbidden by the
// data model and that invariant is what makes the guard's ownership check
// race-free.
func (r *repository) Update(ctx context.Context, a Announcement) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE announcements SET title=$2, body=$3, priority=$4, is_pinned=$5, expires_at=$6, updated_at=NOW()
		 WHERE id=$1 AND is_active`,
		a.ID, a.Title, a.Body, string(a.Priority), a.IsPinned, a.ExpiresAt)
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
		`UPDATE announcements SET is_archived=$2, updated_at=NOW() WHERE id=$1 AND is_active`, id, archived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ArchiveExpired retires announcements whose expiry has passed. Called by
// the background worker.
func (r *repository) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE announcements SET is_archived=TRUE, updated_at=NOW()
		 WHERE is_active AND NOT is_archived AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanTargets(a *Announcement) []any {
	return []any{&a.ID, &a.BarangayID, &a.Title, &a.Body, (*string)(&a.Priority), &a.IsPinned, &a.PublishedAt, &a.ExpiresAt, &a.CreatedBy, &a.IsActive, &a.IsArchived, &a.CreatedAt, &a.UpdatedAt}
}

func scanAnnouncement(row pgx.Row) (Announcement, error) {
	var a Announcement
	if err := row.Scan(scanTargets(&a)...); err != nil {
		return Announcement{}, err
	}
	return a, nil
}

func nilTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
