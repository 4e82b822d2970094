package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/store"
	"onedesk/backend/internal/xid"
)

// Operation names accepted by FailNext.
const (
	OpListProducts   = "list_products"
	OpInsertProducts = "insert_products"
	OpUpsertProducts = "upsert_products"
	OpDeleteProducts = "delete_products"
	OpCreateBill     = "create_bill"
	OpCreateReturn   = "create_return"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]map[string]domain.Product
	bills        []domain.Bill
	returns      map[string][]domain.ReturnRecord
	auditLogs    []domain.AuditLog
	usersByID    map[string]domain.UserAccount
	usersByEmail map[string]string

	faultMu sync.Mutex
	faults  map[string]error
}

func New() *Store {
	return &Store{
		products:     make(map[string]map[string]domain.Product),
		bills:        make([]domain.Bill, 0, 64),
		returns:      make(map[string][]domain.ReturnRecord),
		auditLogs:    make([]domain.AuditLog, 0, 128),
		usersByID:    make(map[string]domain.UserAccount),
		usersByEmail: make(map[string]string),
		faults:       make(map[string]error),
	}
}

// FailNext makes the next call of op return err. Used to drive the
// persistence failure paths without a database.
func (s *Store) FailNext(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

func (s *Store) ListProducts(_ context.Context, ownerID string) ([]domain.Product, error) {
	if err := s.fault(OpListProducts); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.products[ownerID]
	products := make([]domain.Product, 0, len(rows))
	for _, p := range rows {
		products = append(products, cloneProduct(p))
	}
	sortProducts(products)
	return products, nil
}

func (s *Store) InsertProducts(_ context.Context, ownerID string, products []domain.Product) error {
	if err := s.fault(OpInsertProducts); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.ownerProducts(ownerID)
	for _, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			return store.ErrInvalid
		}
		if _, exists := rows[p.ID]; exists {
			return store.ErrConflict
		}
	}
	now := time.Now().UTC()
	for _, p := range products {
		p.UserID = ownerID
		if p.CreatedAt == nil {
			p.CreatedAt = &now
		}
		rows[p.ID] = cloneProduct(p)
	}
	return nil
}

func (s *Store) UpsertProducts(_ context.Context, ownerID string, products []domain.Product) error {
	if err := s.fault(OpUpsertProducts); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.ownerProducts(ownerID)
	now := time.Now().UTC()
	for _, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			return store.ErrInvalid
		}
		p.UserID = ownerID
		if existing, ok := rows[p.ID]; ok && existing.CreatedAt != nil {
			p.CreatedAt = existing.CreatedAt
		}
		if p.CreatedAt == nil {
			p.CreatedAt = &now
		}
		rows[p.ID] = cloneProduct(p)
	}
	return nil
}

func (s *Store) DeleteProducts(_ context.Context, ownerID string, ids []string) error {
	if err := s.fault(OpDeleteProducts); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.products[ownerID]
	for _, id := range ids {
		delete(rows, id)
	}
	return nil
}

func (s *Store) CreateBill(_ context.Context, bill domain.Bill) error {
	if err := s.fault(OpCreateBill); err != nil {
		return err
	}
	if strings.TrimSpace(bill.ID) == "" || strings.TrimSpace(bill.UserID) == "" {
		return store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.bills {
		if existing.ID == bill.ID {
			return store.ErrConflict
		}
	}
	s.bills = append(s.bills, cloneBill(bill))
	return nil
}

func (s *Store) ListBills(_ context.Context, ownerID string, from time.Time, to time.Time) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Bill, 0, 32)
	for _, bill := range s.bills {
		if bill.UserID != ownerID || !inRange(bill.Date, from, to) {
			continue
		}
		result = append(result, cloneBill(bill))
	}
	slices.SortFunc(result, func(a, b domain.Bill) int {
		return a.Date.Compare(b.Date)
	})
	return result, nil
}

func (s *Store) CreateReturn(_ context.Context, ownerID string, record domain.ReturnRecord) error {
	if err := s.fault(OpCreateReturn); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record.UserID = ownerID
	s.returns[ownerID] = append(s.returns[ownerID], record)
	return nil
}

func (s *Store) ListReturns(_ context.Context, ownerID string, from time.Time, to time.Time) ([]domain.ReturnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ReturnRecord, 0, len(s.returns[ownerID]))
	for _, record := range s.returns[ownerID] {
		if !inRange(record.ReturnDate, from, to) {
			continue
		}
		result = append(result, record)
	}
	slices.SortFunc(result, func(a, b domain.ReturnRecord) int {
		return a.ReturnDate.Compare(b.ReturnDate)
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, ownerID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.UserID != ownerID || !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID == "" || email == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}
	if _, exists := s.usersByEmail[email]; exists {
		return store.ErrConflict
	}
	user.Email = email
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	s.usersByEmail[email] = user.ID
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ownerProducts(ownerID string) map[string]domain.Product {
	rows, ok := s.products[ownerID]
	if !ok {
		rows = make(map[string]domain.Product)
		s.products[ownerID] = rows
	}
	return rows
}

func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func sortProducts(products []domain.Product) {
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func cloneProduct(src domain.Product) domain.Product {
	out := src
	if src.CreatedAt != nil {
		at := *src.CreatedAt
		out.CreatedAt = &at
	}
	return out
}

func cloneBill(src domain.Bill) domain.Bill {
	out := src
	out.Items = slices.Clone(src.Items)
	return out
}
