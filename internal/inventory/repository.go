package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maelza/maelza-erp/internal/platform/db"
	"github.com/maelza/maelza-erp/internal/shared"
)

// TxStore exposes the product and journal operations that must run inside the
// caller's transaction.
type TxStore interface {
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error)
	LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error)
	UpdateProductStock(ctx context.Context, id uuid.UUID, stock int) error
	InsertMovement(ctx context.Context, m Movement) error
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, code, name, unit, cost_price, sale_price, stock, min_stock, is_active, created_at, updated_at`

const productFilterClause = `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')
  AND (NOT $2::boolean OR is_active)
  AND (NOT $3::boolean OR stock <= min_stock)`

// ListProducts returns one page of products and the total match count.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	if r == nil {
		return nil, 0, errors.New("inventory repository not initialised")
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products `+productFilterClause,
		filter.Search, filter.ActiveOnly, filter.LowStock).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("inventory: count products: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products `+productFilterClause+`
ORDER BY name ASC, id ASC
LIMIT $4 OFFSET $5`, filter.Search, filter.ActiveOnly, filter.LowStock, perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: list products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetProduct loads one product.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	if r == nil {
		return Product{}, errors.New("inventory repository not initialised")
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// updatableProductColumns whitelists columns accepted by UpdateProduct.
var updatableProductColumns = map[string]bool{
	"code": true, "name": true, "unit": true, "cost_price": true, "sale_price": true, "min_stock": true, "is_active": true,
}

// CreateProduct inserts p and, when given, its opening journal row in one transaction.
func (r *Repository) CreateProduct(ctx context.Context, p Product, opening *Movement) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO products (`+productColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			p.ID, p.Code, p.Name, p.Unit, p.CostPrice, p.SalePrice, p.Stock, p.MinStock, p.IsActive, p.CreatedAt, p.UpdatedAt); err != nil {
			return err
		}
		if opening == nil {
			return nil
		}
		return NewTxStore(tx).InsertMovement(ctx, *opening)
	})
	return translateProductError(err)
}

// UpdateProduct writes the given columns and returns the stored product.
func (r *Repository) UpdateProduct(ctx context.Context, id uuid.UUID, updates map[string]any) (Product, error) {
	if r == nil {
		return Product{}, errors.New("inventory repository not initialised")
	}
	columns := make([]string, 0, len(updates))
	for column := range updates {
		if !updatableProductColumns[column] {
			return Product{}, fmt.Errorf("%w: column %s not updatable", ErrInvalidProduct, column)
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
	p, err := scanProduct(r.pool.QueryRow(ctx, `UPDATE products SET `+strings.Join(sets, ", ")+` WHERE id=$1 RETURNING `+productColumns, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, translateProductError(err)
	}
	return p, nil
}

// DeleteProduct removes a product nothing references.
func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var referenced bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id=$1)
  OR EXISTS (SELECT 1 FROM purchase_items WHERE product_id=$1)
  OR EXISTS (SELECT 1 FROM stock_movements WHERE product_id=$1)`, id).Scan(&referenced); err != nil {
			return err
		}
		if referenced {
			return ErrProductInUse
		}
		tag, err := tx.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrProductNotFound
		}
		return nil
	})
	return translateProductError(err)
}

func translateProductError(err error) error {
	if err == nil || errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrProductInUse) {
		return err
	}
	code, constraint, ok := db.Violation(err)
	switch {
	case ok && code == db.CodeUniqueViolation && strings.Contains(constraint, "code"):
		return fmt.Errorf("%w: %s", ErrProductExists, constraint)
	case ok && code == db.CodeForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrProductInUse, constraint)
	case ok && code == db.CodeCheckViolation:
		return fmt.Errorf("%w: %s", ErrInvalidProduct, constraint)
	}
	return err
}

// GetStockCard lists journal rows for a product, oldest first.
func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, movement_type, quantity, balance, ref_kind, ref_id, ref_number, note, created_at
FROM stock_movements
WHERE product_id=$1 AND created_at BETWEEN COALESCE($2, '-infinity'::timestamptz) AND COALESCE($3, 'infinity'::timestamptz)
ORDER BY created_at ASC, id ASC
LIMIT $4`, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, fmt.Errorf("inventory: stock card: %w", err)
	}
	defer rows.Close()
	cards := []Movement{}
	for rows.Next() {
		var (
			m     Movement
			refID uuid.NullUUID
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.Balance, &m.RefKind, &refID, &m.RefNumber, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.RefID = refID.UUID
		cards = append(cards, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

// StockDrift lists products whose stock differs from the balance of their
// latest journal row.
func (r *Repository) StockDrift(ctx context.Context) ([]Drift, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.stock, m.balance
FROM products p
JOIN LATERAL (
  SELECT balance FROM stock_movements
  WHERE product_id = p.id
  ORDER BY created_at DESC, id DESC
  LIMIT 1
) m ON true
WHERE m.balance <> p.stock
ORDER BY p.code`)
	if err != nil {
		return nil, fmt.Errorf("inventory: stock drift: %w", err)
	}
	defer rows.Close()
	var out []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.ProductID, &d.Code, &d.Stock, &d.JournalBalance); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// NewTxStore binds the product store to an open transaction.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
}

// LockProducts takes row locks in ascending id order so concurrent documents
// touching overlapping products cannot deadlock.
func (s *txStore) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
}

func (s *txStore) queryProducts(ctx context.Context, sql string, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	out := make(map[uuid.UUID]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.tx.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (s *txStore) UpdateProductStock(ctx context.Context, id uuid.UUID, stock int) error {
	tag, err := s.tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=NOW() WHERE id=$1`, id, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *txStore) InsertMovement(ctx context.Context, m Movement) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO stock_movements (id, product_id, movement_type, quantity, balance, ref_kind, ref_id, ref_number, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, m.ID, m.ProductID, string(m.Type), m.Quantity, m.Balance, m.RefKind, nullUUID(m.RefID), m.RefNumber, m.Note, m.CreatedAt)
	return err
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.CostPrice, &p.SalePrice, &p.Stock, &p.MinStock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func nullUUID(value uuid.UUID) any {
	if value == uuid.Nil {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
