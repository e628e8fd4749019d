package users

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

// Repository persists portal accounts.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Account, int, error)
	Get(ctx context.Context, id int64) (Account, error)
	Create(ctx context.Context, a Account) (Account, error)
	Update(ctx context.Context, a Account) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const accountColumns = "id, email, name, password_hash, role, barangay_id, is_active, created_at, updated_at"

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Account, int, error) {
	query := "SELECT " + accountColumns + " FROM users WHERE 1=1"
	countQuery := "SELECT COUNT(*) FROM users WHERE 1=1"
	var args []any

	if filters.Role != "" {
		args = append(args, filters.Role)
		cond := " AND role = $" + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}
	if filters.BarangayID != nil {
		args = append(args, *filters.BarangayID)
		cond := " AND barangay_id = $" + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		cond := " AND (email ILIKE $" + strconv.Itoa(len(args)) + " OR name ILIKE $" + strconv.Itoa(len(args)) + ")"
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY name"
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

	var items []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrNotFound
	}
	return a, err
}

func (r *repository) Create(ctx context.Context, a Account) (Account, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash, role, barangay_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+accountColumns,
		a.Email, a.Name, a.PasswordHash, a.Role, a.BarangayID)
	created, err := scanAccount(row)
	if err != nil {
		return Account{}, translateError(err)
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, a Account) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET email = $1, name = $2, role = $3, barangay_id = $4, updated_at = NOW() WHERE id = $5`,
		a.Email, a.Name, a.Role, a.BarangayID, a.ID)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return shared.ErrDuplicate
	}
	return err
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.BarangayID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
