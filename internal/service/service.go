package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"onedesk/backend/internal/billing"
	"onedesk/backend/internal/cache"
	"onedesk/backend/internal/catalog"
	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/expiry"
	"onedesk/backend/internal/logging"
	"onedesk/backend/internal/notify"
	"onedesk/backend/internal/receipt"
	"onedesk/backend/internal/returns"
	"onedesk/backend/internal/store"
	"onedesk/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Workspace is everything one signed-in owner works with.
type Workspace struct {
	OwnerID string
	Catalog *catalog.Store
	Billing *billing.Engine
	Returns *returns.Engine
}

type workspaceEntry struct {
	ready chan struct{}
	ws    *Workspace
	err   error
}

type Options struct {
	Repo        store.Repository
	Notifier    *notify.Hub
	ExpiryState cache.ExpiryStateStore
	Printer     receipt.Printer
	ShopName    string
	Pool        catalog.Submitter
	Logger      *zap.Logger
	Now         func() time.Time
}

type Service struct {
	repo     store.Repository
	hub      *notify.Hub
	monitor  *expiry.Monitor
	receipts receipt.Channel
	shop     string
	pool     catalog.Submitter
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	workspaces map[string]*workspaceEntry
}

func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	hub := opts.Notifier
	if hub == nil {
		hub = notify.NewHub(opts.Logger)
	}
	shop := strings.TrimSpace(opts.ShopName)
	if shop == "" {
		shop = "One Desktop Solution"
	}
	logger := logging.OrNop(opts.Logger)

	return &Service{
		repo:       opts.Repo,
		hub:        hub,
		monitor:    expiry.NewMonitor(opts.ExpiryState, hub, logger),
		receipts:   receipt.Channel{Shop: shop, Printer: opts.Printer},
		shop:       shop,
		pool:       opts.Pool,
		logger:     logger.Named("service"),
		now:        now,
		workspaces: make(map[string]*workspaceEntry),
	}
}

func (s *Service) Notifications() *notify.Hub {
	return s.hub
}

// Workspace returns the owner's open workspace, opening it on first use.
// Concurrent callers for the same owner share one open.
func (s *Service) Workspace(ctx context.Context, ownerID string) (*Workspace, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrAuthFailed
	}

	s.mu.Lock()
	if entry, ok := s.workspaces[ownerID]; ok {
		s.mu.Unlock()
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.ws, nil
	}
	entry := &workspaceEntry{ready: make(chan struct{})}
	s.workspaces[ownerID] = entry
	s.mu.Unlock()

	entry.ws, entry.err = s.openWorkspace(context.WithoutCancel(ctx), ownerID)
	if entry.err != nil {
		s.mu.Lock()
		delete(s.workspaces, ownerID)
		s.mu.Unlock()
	}
	close(entry.ready)
	return entry.ws, entry.err
}

func (s *Service) openWorkspace(ctx context.Context, ownerID string) (*Workspace, error) {
	logger := s.logger.With(zap.String("owner", ownerID))

	cat := catalog.New(catalog.Options{
		OwnerID:  ownerID,
		Repo:     s.repo,
		Notifier: s.hub,
		Pool:     s.pool,
		Logger:   s.logger,
		Now:      s.now,
	})
	cat.OnChange(func(ctx context.Context, products []domain.Product) {
		if _, err := s.monitor.Evaluate(ctx, ownerID, products, s.now()); err != nil {
			logger.Warn("expiry evaluation", zap.Error(err))
		}
	})

	ws := &Workspace{
		OwnerID: ownerID,
		Catalog: cat,
		Billing: billing.New(billing.Options{
			OwnerID:  ownerID,
			Catalog:  cat,
			Bills:    s.repo,
			Receipts: s.receipts,
			Notifier: s.hub,
			Logger:   s.logger,
			Now:      s.now,
		}),
		Returns: returns.New(returns.Options{
			OwnerID:  ownerID,
			Catalog:  cat,
			Returns:  s.repo,
			Notifier: s.hub,
			Logger:   s.logger,
			Now:      s.now,
		}),
	}

	var (
		bills   []domain.Bill
		records []domain.ReturnRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A failed catalog load is reported and leaves the catalog empty;
		// the workspace still opens.
		if err := cat.Load(gctx); err != nil && !errors.Is(err, domain.ErrLoadFailed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bills, err = s.repo.ListBills(gctx, ownerID, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("load bills: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = s.repo.ListReturns(gctx, ownerID, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("load returns: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("open workspace", zap.Error(err))
		s.hub.Error(ownerID, "Failed to open workspace")
		return nil, err
	}

	ws.Billing.RestoreBills(bills)
	ws.Returns.RestoreReturns(records)
	logger.Info("workspace opened",
		zap.Int("products", len(cat.Snapshot())),
		zap.Int("bills", len(bills)),
		zap.Int("returns", len(records)),
	)
	return ws, nil
}

// CloseWorkspace waits for the owner's pending pushes and drops the
// workspace.
func (s *Service) CloseWorkspace(ownerID string) {
	s.mu.Lock()
	entry, ok := s.workspaces[ownerID]
	if ok {
		delete(s.workspaces, ownerID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	<-entry.ready
	if entry.ws != nil {
		if err := entry.ws.Catalog.Flush(); err != nil {
			s.logger.Warn("workspace closed with failed sync", zap.String("owner", ownerID), zap.Error(err))
		}
	}
	s.hub.Forget(ownerID)
	s.logger.Info("workspace closed", zap.String("owner", ownerID))
}

// HandleSessionEvent follows the session gateway: sign-in opens the
// workspace, sign-out closes it.
func (s *Service) HandleSessionEvent(event domain.SessionEvent, session domain.Session) {
	switch event {
	case domain.SessionSignedIn:
		if _, err := s.Workspace(context.Background(), session.UserID); err != nil {
			s.logger.Warn("open workspace on sign-in", zap.String("owner", session.UserID), zap.Error(err))
		}
	case domain.SessionSignedOut:
		s.CloseWorkspace(session.UserID)
	}
}

func (s *Service) openWorkspaces() []*Workspace {
	s.mu.Lock()
	entries := make([]*workspaceEntry, 0, len(s.workspaces))
	for _, entry := range s.workspaces {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	out := make([]*Workspace, 0, len(entries))
	for _, entry := range entries {
		select {
		case <-entry.ready:
			if entry.ws != nil {
				out = append(out, entry.ws)
			}
		default:
		}
	}
	return out
}

// SweepExpiry re-evaluates every open workspace at now.
func (s *Service) SweepExpiry(ctx context.Context, now time.Time) {
	for _, ws := range s.openWorkspaces() {
		if _, err := s.monitor.Evaluate(ctx, ws.OwnerID, ws.Catalog.Snapshot(), now); err != nil {
			s.logger.Warn("expiry sweep", zap.String("owner", ws.OwnerID), zap.Error(err))
		}
	}
}

// Shutdown flushes every open catalog.
func (s *Service) Shutdown() {
	for _, ws := range s.openWorkspaces() {
		if err := ws.Catalog.Flush(); err != nil {
			s.logger.Warn("shutdown with failed sync", zap.String("owner", ws.OwnerID), zap.Error(err))
		}
	}
}

func (s *Service) current(ctx context.Context) (*Workspace, domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return nil, domain.Actor{}, domain.ErrAuthFailed
	}
	ws, err := s.Workspace(ctx, actor.UserID)
	if err != nil {
		return nil, actor, err
	}
	return ws, actor, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return ws.Catalog.Snapshot(), nil
}

func (s *Service) SearchProducts(ctx context.Context, term string, inStockOnly bool) ([]domain.Product, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return ws.Catalog.Search(term, inStockOnly), nil
}

func (s *Service) AddProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := ws.Catalog.Add(ctx, input)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_add", "product", product.ID, fmt.Sprintf("qty=%d,mrp=%s", product.Quantity, product.MRP.StringFixed(2)))
	return product, nil
}

func (s *Service) BulkUpdateProducts(ctx context.Context, products []domain.Product) ([]domain.Product, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	if err := ws.Catalog.ApplyBulkUpdate(ctx, products); err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product_bulk_update", "product", "*", fmt.Sprintf("count=%d", len(products)))
	return ws.Catalog.Snapshot(), nil
}

// SyncNow waits for pending pushes and reloads from the record store. A push
// that failed since the last successful load is reported as ErrSyncFailed,
// once.
func (s *Service) SyncNow(ctx context.Context) (domain.SyncStatus, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.SyncStatus{}, err
	}
	flushErr := ws.Catalog.Flush()
	if err := ws.Catalog.Load(ctx); err != nil {
		return ws.Catalog.Status(), err
	}
	if flushErr != nil {
		return ws.Catalog.Status(), flushErr
	}
	s.hub.Success(ws.OwnerID, "Products synced")
	return ws.Catalog.Status(), nil
}

func (s *Service) SyncStatus(ctx context.Context) (domain.SyncStatus, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.SyncStatus{}, err
	}
	return ws.Catalog.Status(), nil
}

func (s *Service) Cart(ctx context.Context) (domain.Cart, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	return ws.Billing.Cart(), nil
}

func (s *Service) AddToCart(ctx context.Context, req domain.AddCartItemRequest) (domain.Cart, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	return ws.Billing.AddItem(strings.TrimSpace(req.ProductID))
}

func (s *Service) SetCartLineQuantity(ctx context.Context, productID string, req domain.SetLineQuantityRequest) (domain.Cart, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	return ws.Billing.SetLineQuantity(productID, req.Quantity)
}

func (s *Service) RemoveCartLine(ctx context.Context, productID string) (domain.Cart, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	return ws.Billing.RemoveLine(productID), nil
}

func (s *Service) ClearCart(ctx context.Context) (domain.Cart, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	return ws.Billing.Clear(), nil
}

func (s *Service) SetTender(ctx context.Context, req domain.TenderRequest) (domain.Cart, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	return ws.Billing.SetTender(req.Amount)
}

func (s *Service) Commit(ctx context.Context, req domain.CommitRequest) (domain.CommitResponse, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.CommitResponse{}, err
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	bill, err := ws.Billing.Commit(ctx, method, req.PaymentReceived)
	if err != nil {
		return domain.CommitResponse{}, err
	}

	s.logAudit(ctx, "bill_commit", "bill", bill.ID, fmt.Sprintf("total=%s,method=%s,lines=%d", bill.Total.StringFixed(2), bill.PaymentMethod, len(bill.Items)))
	return domain.CommitResponse{Bill: bill, Receipt: receipt.Render(s.shop, bill).Text}, nil
}

func (s *Service) Bills(ctx context.Context) ([]domain.Bill, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return ws.Billing.Bills(), nil
}

func (s *Service) Receipt(ctx context.Context, billID string) (receipt.Document, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return receipt.Document{}, err
	}
	bill, ok := ws.Billing.Bill(strings.TrimSpace(billID))
	if !ok {
		return receipt.Document{}, store.ErrNotFound
	}
	return receipt.Render(s.shop, bill), nil
}

func (s *Service) Returns(ctx context.Context) ([]domain.ReturnRecord, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return ws.Returns.Returns(), nil
}

func (s *Service) ReturnSelection(ctx context.Context) (domain.ReturnSelection, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.ReturnSelection{}, err
	}
	return ws.Returns.Selection(), nil
}

func (s *Service) SelectReturn(ctx context.Context, req domain.SelectReturnRequest) (domain.ReturnSelection, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.ReturnSelection{}, err
	}
	return ws.Returns.SelectProduct(strings.TrimSpace(req.ProductID))
}

func (s *Service) SetRefundAmount(ctx context.Context, req domain.RefundAmountRequest) (domain.ReturnSelection, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.ReturnSelection{}, err
	}
	return ws.Returns.SetRefundAmount(req.Amount)
}

func (s *Service) CancelReturn(ctx context.Context) (domain.ReturnSelection, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.ReturnSelection{}, err
	}
	return ws.Returns.Cancel(), nil
}

func (s *Service) FinalizeReturn(ctx context.Context, req domain.FinalizeReturnRequest) (domain.ReturnRecord, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.ReturnRecord{}, err
	}
	record, err := ws.Returns.Finalize(ctx, req.Reason, req.RefundAmount)
	if err != nil {
		return domain.ReturnRecord{}, err
	}
	s.logAudit(ctx, "return_finalize", "product", record.ProductID, fmt.Sprintf("refund=%s,reason=%s", record.ActualMoneyReceived.StringFixed(2), record.ReturnReason))
	return record, nil
}

func (s *Service) Expiry(ctx context.Context) (domain.ExpiryReport, error) {
	ws, _, err := s.current(ctx)
	if err != nil {
		return domain.ExpiryReport{}, err
	}
	return s.monitor.Evaluate(ctx, ws.OwnerID, ws.Catalog.Snapshot(), s.now())
}

func (s *Service) RecentNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return nil, domain.ErrAuthFailed
	}
	return s.hub.Recent(actor.UserID, limit), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return nil, domain.ErrAuthFailed
	}
	if limit < 1 {
		limit = 100
	}

	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		day, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		from = day
		to = day.Add(24 * time.Hour)
	}
	return s.repo.ListAuditLogs(ctx, actor.UserID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return
	}

	if err := s.repo.CreateAuditLog(context.WithoutCancel(ctx), domain.AuditLog{
		ID:         xid.New("audit"),
		UserID:     actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		s.logger.Warn("write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

func parseDay(date string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidQuery)
	}
	return parsed.UTC(), nil
}

// ErrInvalidQuery marks malformed report or export parameters.
var ErrInvalidQuery = errors.New("invalid query")
