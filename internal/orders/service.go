package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maelza/maelza-erp/internal/inventory"
	"github.com/maelza/maelza-erp/internal/platform/cache"
	"github.com/maelza/maelza-erp/internal/shared"
)

// maxNumberAttempts bounds retries after a document number collision.
const maxNumberAttempts = 3

// TxRepository exposes the operations available inside a document transaction.
type TxRepository interface {
	inventory.TxStore
	SequenceStore
	PartyExists(ctx context.Context, k Kind, id uuid.UUID) (bool, error)
	LockDocument(ctx context.Context, k Kind, id uuid.UUID) (Document, error)
	CreateDocument(ctx context.Context, doc Document) error
	UpdateDocument(ctx context.Context, doc Document) error
	DeleteDocument(ctx context.Context, k Kind, id uuid.UUID) error
	InsertItems(ctx context.Context, k Kind, documentID uuid.UUID, items []Item) error
	DeleteItems(ctx context.Context, k Kind, documentID uuid.UUID) error
	HasPaidPayables(ctx context.Context, purchaseID uuid.UUID) (bool, error)
	DeletePayables(ctx context.Context, purchaseID uuid.UUID) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, k Kind, id uuid.UUID) (Document, error)
	ListDocuments(ctx context.Context, k Kind, filter ListFilter) ([]Document, int, error)
}

// DocumentLocker serialises mutations of one document across processes.
type DocumentLocker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// LowStockNotifier is told about products left at or below minimum stock.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, alerts []inventory.LowStockAlert) error
}

// IdempotencyPort records processed create requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// MetricsRecorder receives domain counters.
type MetricsRecorder interface {
	ObserveDocument(kind, operation, outcome string)
	ObserveStockMovement(kind, direction string, qty int)
	ObserveStockRejection(kind string)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Clock       func() time.Time
	Locker      DocumentLocker
	Notifier    LowStockNotifier
	Idempotency IdempotencyPort
	Metrics     MetricsRecorder
	Logger      *slog.Logger
}

// Service coordinates sale and purchase lifecycles.
type Service struct {
	repo        RepositoryPort
	numbering   *Numbering
	stock       *StockEngine
	validate    *validator.Validate
	clock       func() time.Time
	locker      DocumentLocker
	notifier    LowStockNotifier
	idempotency IdempotencyPort
	metrics     MetricsRecorder
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		numbering:   NewNumbering(clock),
		stock:       NewStockEngine(clock),
		validate:    validator.New(),
		clock:       clock,
		locker:      cfg.Locker,
		notifier:    cfg.Notifier,
		idempotency: cfg.Idempotency,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// Create validates input, prices the items, assigns the next number and persists
// the document. A document created in its settled status moves stock immediately.
func (s *Service) Create(ctx context.Context, k Kind, input CreateInput) (doc Document, err error) {
	defer func() { s.observe(k, "create", err) }()
	if !k.Valid() {
		return Document{}, fmt.Errorf("%w: unknown document kind %q", ErrValidation, k)
	}
	if err := s.validateStruct(input); err != nil {
		return Document{}, err
	}
	status := k.DefaultStatus()
	if input.Status != "" {
		if status, err = k.ParseStatus(input.Status); err != nil {
			return Document{}, err
		}
	}
	if input.UserID == uuid.Nil {
		input.UserID = shared.ActorFromContext(ctx)
	}
	if input.Date.IsZero() {
		input.Date = s.clock()
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		key := input.IdempotencyKey
		if ierr := s.idempotency.CheckAndInsert(ctx, key, string(k)); ierr != nil {
			if errors.Is(ierr, shared.ErrIdempotencyConflict) {
				return Document{}, fmt.Errorf("%w: request already processed", ErrConflict)
			}
			return Document{}, fmt.Errorf("%w: idempotency: %v", ErrPersistence, ierr)
		}
		defer func() {
			if err != nil {
				_ = s.idempotency.Delete(ctx, key, string(k))
			}
		}()
	}

	var lowered []inventory.Product
	for attempt := 1; ; attempt++ {
		doc, lowered, err = s.create(ctx, k, input, status)
		if err == nil || !errors.Is(err, ErrDuplicateNumber) || attempt >= maxNumberAttempts {
			break
		}
		s.logger.Warn("document number collision, retrying", slog.String("kind", string(k)), slog.Int("attempt", attempt))
	}
	if err != nil {
		return Document{}, err
	}
	s.notifyLowStock(ctx, doc, lowered)
	return doc, nil
}

func (s *Service) create(ctx context.Context, k Kind, input CreateInput, status Status) (Document, []inventory.Product, error) {
	var (
		doc     Document
		lowered []inventory.Product
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireParty(ctx, tx, k, input.PartyID); err != nil {
			return err
		}
		catalog, err := tx.FindProductsByIDs(ctx, productIDs(input.Items))
		if err != nil {
			return err
		}
		totals, err := ComputeTotals(k, input.Items, catalog)
		if err != nil {
			return err
		}
		number, err := s.numbering.Next(ctx, tx, k)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		doc = Document{
			ID:        uuid.New(),
			Kind:      k,
			Number:    number,
			PartyID:   input.PartyID,
			UserID:    input.UserID,
			Date:      input.Date,
			Subtotal:  totals.Subtotal,
			Tax:       totals.Tax,
			Total:     totals.Total,
			Status:    status,
			Notes:     input.Notes,
			Items:     withItemIDs(totals.Items),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, k, doc.ID, doc.Items); err != nil {
			return err
		}
		lowered, err = s.commitStock(ctx, tx, ComputeDelta(k, "", status, nil, doc.Items), doc)
		return err
	})
	if err != nil {
		return Document{}, nil, err
	}
	return doc, lowered, nil
}

// Update applies patch to the document. Status changes and item edits are netted
// into a single stock delta per product so the result matches reversing the old
// document and applying the new one.
func (s *Service) Update(ctx context.Context, k Kind, id uuid.UUID, patch Patch) (doc Document, err error) {
	defer func() { s.observe(k, "update", err) }()
	if !k.Valid() {
		return Document{}, fmt.Errorf("%w: unknown document kind %q", ErrValidation, k)
	}
	if err := s.validateStruct(patch); err != nil {
		return Document{}, err
	}
	var target *Status
	if patch.Status != nil {
		parsed, err := k.ParseStatus(*patch.Status)
		if err != nil {
			return Document{}, err
		}
		target = &parsed
	}

	release, err := s.acquire(ctx, k, id)
	if err != nil {
		return Document{}, err
	}
	defer release()

	var lowered []inventory.Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.LockDocument(ctx, k, id)
		if err != nil {
			return err
		}
		next := existing
		if target != nil {
			next.Status = *target
		}
		if _, err := Effect(k, existing.Status, next.Status); err != nil {
			return err
		}
		if patch.PartyID != nil {
			if err := requireParty(ctx, tx, k, *patch.PartyID); err != nil {
				return err
			}
			next.PartyID = *patch.PartyID
		}
		itemsReplaced := len(patch.Items) > 0
		if itemsReplaced {
			catalog, err := tx.FindProductsByIDs(ctx, productIDs(patch.Items))
			if err != nil {
				return err
			}
			totals, err := ComputeTotals(k, patch.Items, catalog)
			if err != nil {
				return err
			}
			next.Items = withItemIDs(totals.Items)
			next.Subtotal, next.Tax, next.Total = totals.Subtotal, totals.Tax, totals.Total
		}
		if patch.Date != nil {
			next.Date = *patch.Date
		}
		if patch.Notes != nil {
			next.Notes = *patch.Notes
		}
		next.UpdatedAt = s.clock().UTC()

		if itemsReplaced {
			if err := tx.DeleteItems(ctx, k, id); err != nil {
				return err
			}
			if err := tx.InsertItems(ctx, k, id, next.Items); err != nil {
				return err
			}
		}
		if err := tx.UpdateDocument(ctx, next); err != nil {
			return err
		}
		delta := ComputeDelta(k, existing.Status, next.Status, existing.Items, next.Items)
		if lowered, err = s.commitStock(ctx, tx, delta, next); err != nil {
			return err
		}
		doc = next
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.notifyLowStock(ctx, doc, lowered)
	return doc, nil
}

// Delete removes a document and its lines. Completed sales and purchases with
// payments against them are refused.
func (s *Service) Delete(ctx context.Context, k Kind, id uuid.UUID) (err error) {
	defer func() { s.observe(k, "delete", err) }()
	if !k.Valid() {
		return fmt.Errorf("%w: unknown document kind %q", ErrValidation, k)
	}
	release, err := s.acquire(ctx, k, id)
	if err != nil {
		return err
	}
	defer release()

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.LockDocument(ctx, k, id)
		if err != nil {
			return err
		}
		if k == KindSale && existing.Status == SaleCompleted {
			return fmt.Errorf("%w: cannot delete a completed sale", ErrConflict)
		}
		if k == KindPurchase {
			paid, err := tx.HasPaidPayables(ctx, id)
			if err != nil {
				return err
			}
			if paid {
				return fmt.Errorf("%w: cannot delete a purchase with registered payments", ErrConflict)
			}
			if err := tx.DeletePayables(ctx, id); err != nil {
				return err
			}
		}
		if err := tx.DeleteItems(ctx, k, id); err != nil {
			return err
		}
		return tx.DeleteDocument(ctx, k, id)
	})
}

// Get returns one document with its items.
func (s *Service) Get(ctx context.Context, k Kind, id uuid.UUID) (Document, error) {
	if !k.Valid() {
		return Document{}, fmt.Errorf("%w: unknown document kind %q", ErrValidation, k)
	}
	return s.repo.GetDocument(ctx, k, id)
}

// ListResult is one page of documents.
type ListResult struct {
	Documents  []Document
	Pagination shared.Pagination
}

// List returns documents of kind k matching filter, newest first.
func (s *Service) List(ctx context.Context, k Kind, filter ListFilter) (ListResult, error) {
	if !k.Valid() {
		return ListResult{}, fmt.Errorf("%w: unknown document kind %q", ErrValidation, k)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	docs, total, err := s.repo.ListDocuments(ctx, k, filter)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Documents: docs, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// commitStock applies delta and returns the products whose stock went down.
func (s *Service) commitStock(ctx context.Context, tx TxRepository, delta StockDelta, doc Document) ([]inventory.Product, error) {
	updated, err := s.stock.Commit(ctx, tx, delta, StockRef{Kind: doc.Kind, DocumentID: doc.ID, Number: doc.Number})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) && s.metrics != nil {
			s.metrics.ObserveStockRejection(string(doc.Kind))
		}
		return nil, err
	}
	decreased := make(map[uuid.UUID]bool, len(delta))
	for _, pd := range delta {
		if s.metrics != nil {
			direction := string(inventory.MovementIn)
			qty := pd.Qty
			if qty < 0 {
				direction, qty = string(inventory.MovementOut), -qty
			}
			s.metrics.ObserveStockMovement(string(doc.Kind), direction, qty)
		}
		decreased[pd.ProductID] = pd.Qty < 0
	}
	var lowered []inventory.Product
	for _, p := range updated {
		if decreased[p.ID] {
			lowered = append(lowered, p)
		}
	}
	return lowered, nil
}

func (s *Service) notifyLowStock(ctx context.Context, doc Document, lowered []inventory.Product) {
	if s.notifier == nil || len(lowered) == 0 {
		return
	}
	alerts := inventory.LowStockAlerts(lowered, doc.Number, s.clock().UTC())
	if len(alerts) == 0 {
		return
	}
	if err := s.notifier.NotifyLowStock(ctx, alerts); err != nil {
		s.logger.Warn("low stock notification failed",
			slog.String("document", doc.Number),
			slog.Int("products", len(alerts)),
			slog.Any("error", err))
	}
}

// acquire takes the per-document lock. When the lock backend is unreachable the
// operation proceeds under row locks alone.
func (s *Service) acquire(ctx context.Context, k Kind, id uuid.UUID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.Acquire(ctx, shared.DocumentLockKey(string(k), id))
	if errors.Is(err, cache.ErrLockNotObtained) {
		return nil, fmt.Errorf("%w: document busy", ErrConflict)
	}
	if err != nil {
		s.logger.Warn("document lock unavailable, proceeding without it", slog.String("kind", string(k)), slog.Any("error", err))
		return func() {}, nil
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release document lock", slog.Any("error", err))
		}
	}, nil
}

func (s *Service) observe(k Kind, operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDocument(string(k), operation, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrReference), errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "error"
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, "; "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

func requireParty(ctx context.Context, tx TxRepository, k Kind, id uuid.UUID) error {
	ok, err := tx.PartyExists(ctx, k, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s not found", ErrReference, k.partyLabel(), id)
	}
	return nil
}

func withItemIDs(items []Item) []Item {
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	return items
}
