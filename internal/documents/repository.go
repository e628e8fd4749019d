package documents

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

// Repository persists document metadata.
type Repository interface {
	List(ctx context.Context, scope tenancy.Scope, filters ListFilters) ([]Document, int, error)
	Get(ctx context.Context, scope tenancy.Scope, id int64) (Document, error)
	Create(ctx context.Context, d Document) (Document, error)
	UpdateMeta(ctx context.Context, d Document) error
	SetArchived(ctx context.Context, id int64, archived bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const documentColumns = "id, barangay_id, title, category, original_name, stored_name, content_type, size_bytes, uploaded_by, is_active, is_archived, created_at, updated_at"

func (r *repository) List(ctx context.Context, scope tenancy.Scope, filters ListFilters) ([]Document, int, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE is_active"
	countQuery := "SELECT COUNT(*) FROM documents WHERE is_active"
	var args []any

	if !filters.IncludeArchived {
		query += " AND is_archived = FALSE"
		countQuery += " AND is_archived = FALSE"
	}
	if filters.Category != "" {
		args = append(args, filters.Category)
		cond := " AND category = $" + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		cond := " AND (title ILIKE $" + strconv.Itoa(len(args)) + " OR original_name ILIKE $" + strconv.Itoa(len(args)) + ")"
		query += cond
		countQuery += cond
	}

	countArgs := make([]any, len(args))
	copy(countArgs, args)

	var ok bool
	query, args, ok = tenancy.AppendScopeSQL(query, args, scope, "barangay_id")
	if !ok {
		return nil, 0, nil
	}
	countQuery, countArgs, _ = tenancy.AppendScopeSQL(countQuery, countArgs, scope, "barangay_id")

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY created_at DESC"
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

	var items []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, scope tenancy.Scope, id int64) (Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE is_active AND id = $1"
	args := []any{id}
	query, args, ok := tenancy.AppendScopeSQL(query, args, scope, "barangay_id")
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	d, err := scanDocument(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, shared.ErrNotFound
	}
	return d, err
}

func (r *repository) Create(ctx context.Context, d Document) (Document, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO documents (barangay_id, title, category, original_name, stored_name, content_type, size_bytes, uploaded_by, is_active, is_archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, FALSE, NOW(), NOW())
		 RETURNING `+documentColumns,
		d.BarangayID, d.Title, d.Category, d.OriginalName, d.StoredName, d.ContentType, d.SizeBytes, d.UploadedBy)
	return scanDocument(row)
}

// UpdateMeta only touches the caller-editable fields. The tenant column and
// the stored file reference never change after upload.
func (r *repository) UpdateMeta(ctx context.Context, d Document) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE documents SET title = $1, category = $2, updated_at = NOW() WHERE id = $3 AND is_active`,
		d.Title, d.Category, d.ID)
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
		`UPDATE documents SET is_archived = $1, updated_at = NOW() WHERE id = $2 AND is_active`, archived, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.BarangayID, &d.Title, &d.Category, &d.OriginalName, &d.StoredName, &d.ContentType, &d.SizeBytes, &d.UploadedBy, &d.IsActive, &d.IsArchived, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}
