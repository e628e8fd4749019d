package barangays

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangaykms/barangaykms/internal/shared"
)

// Repository persists barangay master data. Barangays are the tenants
// themselves, so listings are never scope filtered.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Barangay, int, error)
	Get(ctx context.Context, id int64) (Barangay, error)
	Create(ctx context.Context, b Barangay) (Barangay, error)
	Update(ctx context.Context, b Barangay) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const barangayColumns = "id, name, code, municipality, province, contact_email, is_active, created_at, updated_at"

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Barangay, int, error) {
	query := "SELECT " + barangayColumns + " FROM barangays WHERE 1=1"
	countQuery := "SELECT COUNT(*) FROM barangays WHERE 1=1"
	var args []any

	if !filters.IncludeInactive {
		query += " AND is_active = TRUE"
		countQuery += " AND is_active = TRUE"
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		cond := " AND (name ILIKE $" + strconv.Itoa(len(args)) + " OR code ILIKE $" + strconv.Itoa(len(args)) + " OR municipality ILIKE $" + strconv.Itoa(len(args)) + ")"
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY province, municipality, name"
	if filters.PerPage > 0 {
		offset := (filters.Page - 1) * filters.PerPage
		if offset < 0 {
			offset = 0
		}
		args = append(args, filters.PerPage)
		query += " LIMIT $" + strconv.Itoa(len(args))
		args = append(args, offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Barangay
	for rows.Next() {
		b, err := scanBarangay(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Barangay, error) {
	b, err := scanBarangay(r.pool.QueryRow(ctx, "SELECT "+barangayColumns+" FROM barangays WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Barangay{}, shared.ErrNotFound
	}
	return b, err
}

func (r *repository) Create(ctx context.Context, b Barangay) (Barangay, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO barangays (name, code, municipality, province, contact_email)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+barangayColumns,
		b.Name, b.Code, b.Municipality, b.Province, b.ContactEmail)
	created, err := scanBarangay(row)
	if err != nil {
		return Barangay{}, translateError(err)
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, b Barangay) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE barangays SET name = $1, code = $2, municipality = $3, province = $4, contact_email = $5, updated_at = NOW() WHERE id = $6`,
		b.Name, b.Code, b.Municipality, b.Province, b.ContactEmail, b.ID)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE barangays SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// translateError maps a unique violation on the code column to the shared
// duplicate sentinel.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return shared.ErrDuplicate
	}
	return err
}

func scanBarangay(row pgx.Row) (Barangay, error) {
	var b Barangay
	err := row.Scan(&b.ID, &b.Name, &b.Code, &b.Municipality, &b.Province, &b.ContactEmail, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}
