package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maelza/maelza-erp/internal/inventory"
	"github.com/maelza/maelza-erp/internal/platform/db"
)

// tables names the storage of one document kind. Values are constants, never input.
type tables struct {
	documents string
	items     string
	parent    string
	party     string
	parties   string
}

var kindTables = map[Kind]tables{
	KindSale:     {documents: "sales", items: "sale_items", parent: "sale_id", party: "customer_id", parties: "customers"},
	KindPurchase: {documents: "purchases", items: "purchase_items", parent: "purchase_id", party: "supplier_id", parties: "suppliers"},
}

func tablesFor(k Kind) (tables, error) {
	t, ok := kindTables[k]
	if !ok {
		return tables{}, fmt.Errorf("%w: unknown document kind %q", ErrValidation, k)
	}
	return t, nil
}

// Repository persists sales and purchases in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a read-committed transaction. Consistency comes from the row
// locks taken by LockDocument and LockProducts. Storage errors surface as
// ErrPersistence; domain errors returned by fn pass through unchanged.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return fmt.Errorf("%w: orders repository not initialised", ErrPersistence)
	}
	err := db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: inventory.NewTxStore(tx), tx: tx})
	})
	return translate(err)
}

const documentColumns = `d.id, d.number, d.%[1]s, d.user_id, d.date, d.subtotal, d.tax, d.total, d.status, COALESCE(d.notes, ''), d.created_at, d.updated_at`

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetDocument loads a document with its items.
func (r *Repository) GetDocument(ctx context.Context, k Kind, id uuid.UUID) (Document, error) {
	t, err := tablesFor(k)
	if err != nil {
		return Document{}, err
	}
	sql := fmt.Sprintf(`SELECT `+documentColumns+` FROM %[2]s d WHERE d.id=$1`, t.party, t.documents)
	doc, err := loadDocument(ctx, r.pool, k, t, sql, id)
	return doc, translate(err)
}

// ListDocuments returns one page of documents, newest first, with the total match count.
func (r *Repository) ListDocuments(ctx context.Context, k Kind, filter ListFilter) ([]Document, int, error) {
	t, err := tablesFor(k)
	if err != nil {
		return nil, 0, err
	}
	where := fmt.Sprintf(`FROM %[1]s d
LEFT JOIN %[2]s p ON p.id = d.%[3]s
WHERE ($1 = '' OR d.number ILIKE '%%' || $1 || '%%' OR d.notes ILIKE '%%' || $1 || '%%' OR p.name ILIKE '%%' || $1 || '%%')
  AND ($2::uuid IS NULL OR d.%[3]s = $2)
  AND ($3 = '' OR d.status = $3)
  AND d.date BETWEEN COALESCE($4, '-infinity'::timestamptz) AND COALESCE($5, 'infinity'::timestamptz)`, t.documents, t.parties, t.party)
	args := []any{filter.Search, nullUUID(filter.PartyID), string(filter.Status), nullTime(filter.From), nullTime(filter.To)}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) `+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	sql := fmt.Sprintf(`SELECT `+documentColumns+` `, t.party) + where + `
ORDER BY d.created_at DESC, d.id DESC
LIMIT $6 OFFSET $7`
	rows, err := r.pool.Query(ctx, sql, append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)...)
	if err != nil {
		return nil, 0, translate(err)
	}
	docs, err := collectDocuments(rows, k)
	if err != nil {
		return nil, 0, translate(err)
	}
	for i := range docs {
		if docs[i].Items, err = loadItems(ctx, r.pool, t, docs[i].ID); err != nil {
			return nil, 0, translate(err)
		}
	}
	return docs, total, nil
}

type txRepo struct {
	inventory.TxStore
	tx pgx.Tx
}

// NextSequence bumps the (kind, scope) counter. A missing counter row is seeded
// from the highest number already stored under that scope.
func (r *txRepo) NextSequence(ctx context.Context, k Kind, scope string) (int64, error) {
	t, err := tablesFor(k)
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf(`INSERT INTO document_counters (kind, scope_key, last_value)
VALUES ($1, $2, COALESCE((
	SELECT MAX(CAST(substring(number FROM '([0-9]+)$') AS BIGINT))
	FROM %s WHERE number LIKE $2 || '-%%'
), 0) + 1)
ON CONFLICT (kind, scope_key) DO UPDATE SET last_value = document_counters.last_value + 1
RETURNING last_value`, t.documents)
	var seq int64
	if err := r.tx.QueryRow(ctx, sql, string(k), scope).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *txRepo) PartyExists(ctx context.Context, k Kind, id uuid.UUID) (bool, error) {
	t, err := tablesFor(k)
	if err != nil {
		return false, err
	}
	var exists bool
	err = r.tx.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id=$1)`, t.parties), id).Scan(&exists)
	return exists, err
}

func (r *txRepo) LockDocument(ctx context.Context, k Kind, id uuid.UUID) (Document, error) {
	t, err := tablesFor(k)
	if err != nil {
		return Document{}, err
	}
	sql := fmt.Sprintf(`SELECT `+documentColumns+` FROM %[2]s d WHERE d.id=$1 FOR UPDATE`, t.party, t.documents)
	return loadDocument(ctx, r.tx, k, t, sql, id)
}

func (r *txRepo) CreateDocument(ctx context.Context, doc Document) error {
	t, err := tablesFor(doc.Kind)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, number, %s, user_id, date, subtotal, tax, total, status, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, t.documents, t.party),
		doc.ID, doc.Number, doc.PartyID, nullUUID(doc.UserID), doc.Date, doc.Subtotal, doc.Tax, doc.Total, string(doc.Status), nullString(doc.Notes), doc.CreatedAt, doc.UpdatedAt)
	return err
}

func (r *txRepo) UpdateDocument(ctx context.Context, doc Document) error {
	t, err := tablesFor(doc.Kind)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s=$2, date=$3, subtotal=$4, tax=$5, total=$6, status=$7, notes=$8, updated_at=$9 WHERE id=$1`, t.documents, t.party),
		doc.ID, doc.PartyID, doc.Date, doc.Subtotal, doc.Tax, doc.Total, string(doc.Status), nullString(doc.Notes), doc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) DeleteDocument(ctx context.Context, k Kind, id uuid.UUID) error {
	t, err := tablesFor(k)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, t.documents), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertItems(ctx context.Context, k Kind, documentID uuid.UUID, items []Item) error {
	t, err := tablesFor(k)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`INSERT INTO %s (id, %s, line_no, product_id, quantity, unit_price, total) VALUES ($1,$2,$3,$4,$5,$6,$7)`, t.items, t.parent)
	batch := &pgx.Batch{}
	for i, item := range items {
		batch.Queue(sql, item.ID, documentID, i+1, item.ProductID, item.Quantity, item.UnitPrice, item.Total)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepo) DeleteItems(ctx context.Context, k Kind, documentID uuid.UUID) error {
	t, err := tablesFor(k)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=$1`, t.items, t.parent), documentID)
	return err
}

func (r *txRepo) HasPaidPayables(ctx context.Context, purchaseID uuid.UUID) (bool, error) {
	var paid bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account_payables WHERE purchase_id=$1 AND paid_amount > 0)`, purchaseID).Scan(&paid)
	return paid, err
}

func (r *txRepo) DeletePayables(ctx context.Context, purchaseID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM account_payables WHERE purchase_id=$1`, purchaseID)
	return err
}

func loadDocument(ctx context.Context, q queryer, k Kind, t tables, sql string, id uuid.UUID) (Document, error) {
	doc, err := scanDocument(q.QueryRow(ctx, sql, id), k)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if doc.Items, err = loadItems(ctx, q, t, id); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func loadItems(ctx context.Context, q queryer, t tables, documentID uuid.UUID) ([]Item, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT id, product_id, quantity, unit_price, total FROM %s WHERE %s=$1 ORDER BY line_no ASC`, t.items, t.parent), documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func collectDocuments(rows pgx.Rows, k Kind) ([]Document, error) {
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows, k)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row pgx.Row, k Kind) (Document, error) {
	var (
		doc    Document
		userID uuid.NullUUID
		status string
	)
	err := row.Scan(&doc.ID, &doc.Number, &doc.PartyID, &userID, &doc.Date, &doc.Subtotal, &doc.Tax, &doc.Total, &status, &doc.Notes, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	doc.Kind = k
	doc.UserID = userID.UUID
	doc.Status = Status(status)
	return doc, nil
}

// translate maps storage failures onto the domain taxonomy. Domain errors pass through.
func translate(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	if code, constraint, ok := db.Violation(err); ok {
		switch code {
		case db.CodeUniqueViolation:
			if strings.Contains(constraint, "number") {
				return fmt.Errorf("%w: %s", ErrDuplicateNumber, constraint)
			}
			return fmt.Errorf("%w: %s", ErrConflict, constraint)
		case db.CodeForeignKeyViolation:
			if strings.Contains(constraint, "product") {
				return fmt.Errorf("%w: %s", ErrUnknownProduct, constraint)
			}
			return fmt.Errorf("%w: %s", ErrReference, constraint)
		case db.CodeCheckViolation:
			if strings.Contains(constraint, "stock") {
				return fmt.Errorf("%w: %s", ErrInsufficientStock, constraint)
			}
			return fmt.Errorf("%w: %s", ErrValidation, constraint)
		}
	}
	if errors.Is(err, inventory.ErrProductNotFound) {
		return fmt.Errorf("%w: %v", ErrUnknownProduct, err)
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

func nullUUID(value uuid.UUID) any {
	if value == uuid.Nil {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
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
