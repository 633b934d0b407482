package parties

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maelza/maelza-erp/internal/platform/db"
	"github.com/maelza/maelza-erp/internal/shared"
)

// Repository abstracts party persistence.
type Repository interface {
	Get(ctx context.Context, role Role, id uuid.UUID) (*Party, error)
	List(ctx context.Context, role Role, req ListRequest) ([]Party, int, error)
	Create(ctx context.Context, p Party) error
	Update(ctx context.Context, role Role, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, role Role, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const partyColumns = `id, name, tax_id, email, phone, address, is_active, created_at, updated_at`

// updatable whitelists columns accepted by Update.
var updatable = map[string]bool{"name": true, "tax_id": true, "email": true, "phone": true, "address": true, "is_active": true}

func tableFor(role Role) (string, error) {
	table, ok := role.table()
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	return table, nil
}

func (r *repository) Get(ctx context.Context, role Role, id uuid.UUID) (*Party, error) {
	table, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	p, err := scanParty(r.pool.QueryRow(ctx, `SELECT `+partyColumns+` FROM `+table+` WHERE id=$1`, id), role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) List(ctx context.Context, role Role, req ListRequest) ([]Party, int, error) {
	table, err := tableFor(role)
	if err != nil {
		return nil, 0, err
	}
	var conditions []string
	var args []any
	argPos := 1
	if req.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argPos))
		args = append(args, *req.IsActive)
		argPos++
	}
	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR tax_id ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", table, err)
	}
	page, perPage := shared.NormalizePage(req.Page, req.PerPage)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, partyColumns, table, where, argPos, argPos+1)
	rows, err := r.pool.Query(ctx, query, append(args, perPage, shared.Offset(page, perPage))...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()
	var out []Party
	for rows.Next() {
		p, err := scanParty(rows, role)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Party) error {
	table, err := tableFor(p.Role)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO `+table+` (`+partyColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Name, p.TaxID, p.Email, p.Phone, p.Address, p.IsActive, p.CreatedAt, p.UpdatedAt)
	return translate(err)
}

func (r *repository) Update(ctx context.Context, role Role, id uuid.UUID, updates map[string]any) error {
	table, err := tableFor(role)
	if err != nil {
		return err
	}
	columns := make([]string, 0, len(updates))
	for column := range updates {
		if !updatable[column] {
			return fmt.Errorf("%w: column %s not updatable", ErrValidation, column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)
	sets := make([]string, 0, len(columns)+1)
	args := []any{id}
	for i, column := range columns {
		sets = append(sets, fmt.Sprintf("%s=$%d", column, i+2))
		args = append(args, updates[column])
	}
	sets = append(sets, "updated_at=NOW()")
	tag, err := r.pool.Exec(ctx, `UPDATE `+table+` SET `+strings.Join(sets, ", ")+` WHERE id=$1`, args...)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, role Role, id uuid.UUID) error {
	table, err := tableFor(role)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	code, _, ok := db.Violation(err)
	switch {
	case ok && code == db.CodeUniqueViolation:
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case ok && code == db.CodeForeignKeyViolation:
		return fmt.Errorf("%w: %v", ErrInUse, err)
	}
	return err
}

func scanParty(row pgx.Row, role Role) (Party, error) {
	p := Party{Role: role}
	err := row.Scan(&p.ID, &p.Name, &p.TaxID, &p.Email, &p.Phone, &p.Address, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
