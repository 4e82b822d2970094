package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/logging"
	"onedesk/backend/internal/store"
	"onedesk/backend/internal/xid"
)

// Notifier is the part of the notification channel the catalog reports to.
type Notifier interface {
	Success(ownerID string, message string) domain.Notification
	Error(ownerID string, message string) domain.Notification
}

// Submitter runs background work. *ants.Pool satisfies it.
type Submitter interface {
	Submit(task func()) error
}

type ChangeFunc func(ctx context.Context, products []domain.Product)

// Store is one owner's product list. It is the only writer of that list:
// engines mutate it through Update, which applies the change locally at once
// and pushes it to the record store in the background.
type Store struct {
	ownerID string
	repo    store.Repository
	notify  Notifier
	pool    Submitter
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	products []domain.Product
	withdraw map[string]struct{}
	hooks    []ChangeFunc
	// version counts local changes; settled is the newest version the
	// record store has accepted or that a reload has since replaced.
	version uint64
	settled uint64

	// syncMu serializes pushes. pendMu guards pending and syncErr; idle is
	// broadcast when pending drops to zero.
	syncMu   sync.Mutex
	pendMu   sync.Mutex
	idle     *sync.Cond
	pending  int
	syncErr  error
	lastSync atomic.Pointer[time.Time]
}

type Options struct {
	OwnerID  string
	Repo     store.Repository
	Notifier Notifier
	Pool     Submitter
	Logger   *zap.Logger
	Now      func() time.Time
}

func New(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s := &Store{
		ownerID:  opts.OwnerID,
		repo:     opts.Repo,
		notify:   opts.Notifier,
		pool:     opts.Pool,
		logger:   logging.OrNop(opts.Logger).Named("catalog").With(zap.String("owner", opts.OwnerID)),
		now:      now,
		products: []domain.Product{},
		withdraw: make(map[string]struct{}),
	}
	s.idle = sync.NewCond(&s.pendMu)
	return s
}

func (s *Store) OwnerID() string {
	return s.ownerID
}

// OnChange registers fn to run after every successful load or update.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Load replaces local state with the owner's rows from the record store. On
// failure the prior state is kept. Pending pushes finish first so a reload
// never overtakes a local change. A successful load clears the last sync
// failure since local state then matches the record store.
func (s *Store) Load(ctx context.Context) error {
	s.waitIdle()

	s.syncMu.Lock()
	err := s.reload(ctx)
	s.syncMu.Unlock()
	if err != nil {
		return err
	}
	s.setSyncErr(nil)
	return nil
}

// reload must run with syncMu held so no push lands between the read and
// the swap.
func (s *Store) reload(ctx context.Context) error {
	products, err := s.repo.ListProducts(ctx, s.ownerID)
	if err != nil {
		s.logger.Error("load products", zap.Error(err))
		s.notifyError("Failed to load products")
		return fmt.Errorf("%w: %w", domain.ErrLoadFailed, err)
	}

	s.mu.Lock()
	if s.version != s.settled {
		// A local change is still waiting for its push, which carries the
		// newer state.
		s.mu.Unlock()
		s.logger.Debug("reload superseded by local change")
		return nil
	}
	s.products = cloneProducts(products)
	clear(s.withdraw)
	s.mu.Unlock()

	s.logger.Debug("products loaded", zap.Int("count", len(products)))
	s.fireChange(ctx)
	return nil
}

// Add validates the form, inserts the new lot and reloads so server side
// fields are picked up.
func (s *Store) Add(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	product, err := ParseProductInput(input)
	if err != nil {
		return domain.Product{}, err
	}
	created := s.now()
	product.ID = xid.New("prd")
	product.UserID = s.ownerID
	product.CreatedAt = &created

	if err := s.repo.InsertProducts(ctx, s.ownerID, []domain.Product{product}); err != nil {
		s.logger.Error("insert product", zap.String("product", product.ID), zap.Error(err))
		s.notifyError("Failed to add product")
		return domain.Product{}, fmt.Errorf("%w: %w", domain.ErrAddFailed, err)
	}

	// The row is stored even when the reload fails; that failure is
	// already reported.
	if err := s.Load(ctx); err != nil {
		return product, nil
	}
	if fresh, ok := s.Get(product.ID); ok {
		product = fresh
	}
	s.notifySuccess("Product added successfully")
	return product, nil
}

// Update is the atomic read-modify-write entry point. fn receives a private
// copy of the list and returns the replacement; an error from fn leaves the
// catalog untouched.
func (s *Store) Update(ctx context.Context, fn func(products []domain.Product) ([]domain.Product, error)) error {
	s.mu.Lock()
	next, err := fn(cloneProducts(s.products))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := validateList(next); err != nil {
		s.mu.Unlock()
		return err
	}

	keep := make(map[string]struct{}, len(next))
	for _, p := range next {
		keep[p.ID] = struct{}{}
	}
	for _, p := range s.products {
		if _, ok := keep[p.ID]; !ok {
			s.withdraw[p.ID] = struct{}{}
		}
	}
	for id := range keep {
		delete(s.withdraw, id)
	}
	s.products = cloneProducts(next)
	s.version++
	// Counted before the lock is released so a concurrent Load waits for
	// this push.
	s.pendMu.Lock()
	s.pending++
	s.pendMu.Unlock()
	s.mu.Unlock()

	s.fireChange(ctx)
	s.scheduleSync(context.WithoutCancel(ctx))
	return nil
}

// ApplyBulkUpdate replaces the whole list.
func (s *Store) ApplyBulkUpdate(ctx context.Context, products []domain.Product) error {
	next := cloneProducts(products)
	for i := range next {
		if next[i].UserID == "" {
			next[i].UserID = s.ownerID
		}
	}
	return s.Update(ctx, func([]domain.Product) ([]domain.Product, error) {
		return next, nil
	})
}

// Flush blocks until every scheduled push has finished. It returns the
// ErrSyncFailed of the last push if that push failed and no load has
// succeeded since.
func (s *Store) Flush() error {
	s.waitIdle()
	return s.LastError()
}

func (s *Store) waitIdle() {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

func (s *Store) Syncing() bool {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	return s.pending > 0
}

// LastError is the failure of the last push, or nil.
func (s *Store) LastError() error {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	return s.syncErr
}

func (s *Store) LastSync() *time.Time {
	at := s.lastSync.Load()
	if at == nil {
		return nil
	}
	copyAt := *at
	return &copyAt
}

func (s *Store) Status() domain.SyncStatus {
	s.mu.RLock()
	count := len(s.products)
	s.mu.RUnlock()
	status := domain.SyncStatus{Syncing: s.Syncing(), LastSync: s.LastSync(), Products: count}
	if err := s.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status
}

func (s *Store) Snapshot() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.products)
}

func (s *Store) Get(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.ID == id {
			return cloneProduct(p), true
		}
	}
	return domain.Product{}, false
}

// Search matches term against name and specifics, case-insensitively. The
// billing search passes inStockOnly so empty lots stay hidden.
func (s *Store) Search(term string, inStockOnly bool) []domain.Product {
	needle := strings.ToLower(strings.TrimSpace(term))

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if inStockOnly && p.Quantity <= 0 {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Specifics), needle) {
			continue
		}
		result = append(result, cloneProduct(p))
	}
	return result
}

// scheduleSync runs a push for a change Update has already counted in
// pending.
func (s *Store) scheduleSync(ctx context.Context) {
	task := func() {
		defer s.done()
		s.push(ctx)
	}

	if s.pool == nil {
		go task()
		return
	}
	if err := s.pool.Submit(task); err != nil {
		s.logger.Warn("sync pool rejected task, running unpooled", zap.Error(err))
		go task()
	}
}

// push sends the latest list rather than the one captured at schedule time,
// so pushes that run out of order still converge on the newest state.
func (s *Store) push(ctx context.Context) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	version := s.version
	products := cloneProducts(s.products)
	withdrawn := make([]string, 0, len(s.withdraw))
	for id := range s.withdraw {
		withdrawn = append(withdrawn, id)
	}
	clear(s.withdraw)
	s.mu.Unlock()
	slices.Sort(withdrawn)

	err := s.repo.UpsertProducts(ctx, s.ownerID, products)
	if err == nil {
		err = s.repo.DeleteProducts(ctx, s.ownerID, withdrawn)
	}
	if err != nil {
		s.logger.Error("sync products", zap.Int("count", len(products)), zap.Strings("withdrawn", withdrawn), zap.Error(err))
		s.notifyError("Failed to update products")
		s.setSyncErr(fmt.Errorf("%w: %w", domain.ErrSyncFailed, err))
		s.requeue(withdrawn)
		s.settle(version)
		_ = s.reload(ctx)
		return
	}

	s.settle(version)
	s.setSyncErr(nil)
	at := s.now()
	s.lastSync.Store(&at)
	s.logger.Debug("products synced", zap.Int("count", len(products)), zap.Int("withdrawn", len(withdrawn)))
}

// requeue puts back withdrawals a failed push did not apply, unless the lot
// has been restored locally since.
func (s *Store) requeue(withdrawn []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	present := make(map[string]struct{}, len(s.products))
	for _, p := range s.products {
		present[p.ID] = struct{}{}
	}
	for _, id := range withdrawn {
		if _, ok := present[id]; !ok {
			s.withdraw[id] = struct{}{}
		}
	}
}

func (s *Store) settle(version uint64) {
	s.mu.Lock()
	if version > s.settled {
		s.settled = version
	}
	s.mu.Unlock()
}

func (s *Store) setSyncErr(err error) {
	s.pendMu.Lock()
	s.syncErr = err
	s.pendMu.Unlock()
}

func (s *Store) done() {
	s.pendMu.Lock()
	s.pending--
	if s.pending == 0 {
		s.idle.Broadcast()
	}
	s.pendMu.Unlock()
}

func (s *Store) fireChange(ctx context.Context) {
	s.mu.RLock()
	hooks := slices.Clone(s.hooks)
	products := cloneProducts(s.products)
	s.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, products)
	}
}

func (s *Store) notifyError(message string) {
	if s.notify != nil {
		s.notify.Error(s.ownerID, message)
	}
}

func (s *Store) notifySuccess(message string) {
	if s.notify != nil {
		s.notify.Success(s.ownerID, message)
	}
}

func validateList(products []domain.Product) error {
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if err := ValidateProduct(p); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidProduct, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

func cloneProduct(src domain.Product) domain.Product {
	out := src
	if src.CreatedAt != nil {
		at := *src.CreatedAt
		out.CreatedAt = &at
	}
	return out
}

func cloneProducts(src []domain.Product) []domain.Product {
	out := make([]domain.Product, len(src))
	for i, p := range src {
		out[i] = cloneProduct(p)
	}
	return out
}
