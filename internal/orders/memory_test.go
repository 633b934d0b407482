package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/maelza/maelza-erp/internal/inventory"
)

type payable struct {
	amount, paid float64
}

type memoryState struct {
	products  map[uuid.UUID]inventory.Product
	parties   map[Kind]map[uuid.UUID]bool
	docs      map[Kind]map[uuid.UUID]Document
	counters  map[string]int64
	payables  map[uuid.UUID][]payable
	movements []inventory.Movement
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		products:  make(map[uuid.UUID]inventory.Product, len(s.products)),
		parties:   map[Kind]map[uuid.UUID]bool{KindSale: {}, KindPurchase: {}},
		docs:      map[Kind]map[uuid.UUID]Document{KindSale: {}, KindPurchase: {}},
		counters:  make(map[string]int64, len(s.counters)),
		payables:  make(map[uuid.UUID][]payable, len(s.payables)),
		movements: append([]inventory.Movement(nil), s.movements...),
	}
	for id, p := range s.products {
		out.products[id] = p
	}
	for k, ids := range s.parties {
		for id := range ids {
			out.parties[k][id] = true
		}
	}
	for k, docs := range s.docs {
		for id, doc := range docs {
			doc.Items = append([]Item(nil), doc.Items...)
			out.docs[k][id] = doc
		}
	}
	for k, v := range s.counters {
		out.counters[k] = v
	}
	for id, p := range s.payables {
		out.payables[id] = append([]payable(nil), p...)
	}
	return out
}

// memoryRepo runs transactions one at a time against a copy of the state and
// swaps the copy in only when fn succeeds.
type memoryRepo struct {
	mu             sync.Mutex
	state          *memoryState
	createFailures int
	failStockWrite error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: (&memoryState{}).clone()}
}

func (r *memoryRepo) addProduct(p inventory.Product) inventory.Product {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.state.products[p.ID] = p
	return p
}

func (r *memoryRepo) addParty(k Kind) uuid.UUID {
	id := uuid.New()
	r.state.parties[k][id] = true
	return id
}

func (r *memoryRepo) stock(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.products[id].Stock
}

func (r *memoryRepo) count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.docs[k])
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r, state: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryRepo) GetDocument(_ context.Context, k Kind, id uuid.UUID) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.state.docs[k][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (r *memoryRepo) ListDocuments(_ context.Context, k Kind, filter ListFilter) ([]Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, doc := range r.state.docs[k] {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.PartyID != uuid.Nil && doc.PartyID != filter.PartyID {
			continue
		}
		out = append(out, doc)
	}
	return out, len(out), nil
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryState
}

func (tx *memoryTx) FindProductsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Product, error) {
	out := make(map[uuid.UUID]inventory.Product)
	for _, id := range ids {
		if p, ok := tx.state.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (tx *memoryTx) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Product, error) {
	return tx.FindProductsByIDs(ctx, ids)
}

func (tx *memoryTx) UpdateProductStock(_ context.Context, id uuid.UUID, stock int) error {
	if tx.repo.failStockWrite != nil {
		return tx.repo.failStockWrite
	}
	p, ok := tx.state.products[id]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if stock < 0 {
		return errors.New("check constraint products_stock_nonnegative")
	}
	p.Stock = stock
	tx.state.products[id] = p
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m inventory.Movement) error {
	tx.state.movements = append(tx.state.movements, m)
	return nil
}

func (tx *memoryTx) NextSequence(_ context.Context, k Kind, scope string) (int64, error) {
	key := fmt.Sprintf("%s|%s", k, scope)
	if _, ok := tx.state.counters[key]; !ok {
		var highest int64
		for _, doc := range tx.state.docs[k] {
			if seq, ok := ParseSuffix(scope, doc.Number); ok && seq > highest {
				highest = seq
			}
		}
		tx.state.counters[key] = highest
	}
	tx.state.counters[key]++
	return tx.state.counters[key], nil
}

func (tx *memoryTx) PartyExists(_ context.Context, k Kind, id uuid.UUID) (bool, error) {
	return tx.state.parties[k][id], nil
}

func (tx *memoryTx) LockDocument(_ context.Context, k Kind, id uuid.UUID) (Document, error) {
	doc, ok := tx.state.docs[k][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	doc.Items = append([]Item(nil), doc.Items...)
	return doc, nil
}

func (tx *memoryTx) CreateDocument(_ context.Context, doc Document) error {
	if tx.repo.createFailures > 0 {
		tx.repo.createFailures--
		return ErrDuplicateNumber
	}
	for _, existing := range tx.state.docs[doc.Kind] {
		if existing.Number == doc.Number {
			return ErrDuplicateNumber
		}
	}
	doc.Items = nil
	tx.state.docs[doc.Kind][doc.ID] = doc
	return nil
}

func (tx *memoryTx) UpdateDocument(_ context.Context, doc Document) error {
	existing, ok := tx.state.docs[doc.Kind][doc.ID]
	if !ok {
		return ErrNotFound
	}
	doc.Items = existing.Items
	tx.state.docs[doc.Kind][doc.ID] = doc
	return nil
}

func (tx *memoryTx) DeleteDocument(_ context.Context, k Kind, id uuid.UUID) error {
	if _, ok := tx.state.docs[k][id]; !ok {
		return ErrNotFound
	}
	delete(tx.state.docs[k], id)
	return nil
}

func (tx *memoryTx) InsertItems(_ context.Context, k Kind, documentID uuid.UUID, items []Item) error {
	doc := tx.state.docs[k][documentID]
	doc.Items = append(doc.Items, items...)
	tx.state.docs[k][documentID] = doc
	return nil
}

func (tx *memoryTx) DeleteItems(_ context.Context, k Kind, documentID uuid.UUID) error {
	doc := tx.state.docs[k][documentID]
	doc.Items = nil
	tx.state.docs[k][documentID] = doc
	return nil
}

func (tx *memoryTx) HasPaidPayables(_ context.Context, purchaseID uuid.UUID) (bool, error) {
	for _, p := range tx.state.payables[purchaseID] {
		if p.paid > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) DeletePayables(_ context.Context, purchaseID uuid.UUID) error {
	delete(tx.state.payables, purchaseID)
	return nil
}
