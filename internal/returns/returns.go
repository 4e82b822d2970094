package returns

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/logging"
	"onedesk/backend/internal/store"
	"onedesk/backend/internal/xid"
)

// Tolerance absorbs sub-paisa rounding in a refund typed by hand.
var Tolerance = decimal.RequireFromString("0.005")

type Catalog interface {
	Get(id string) (domain.Product, bool)
	Update(ctx context.Context, fn func(products []domain.Product) ([]domain.Product, error)) error
}

type ReturnWriter interface {
	CreateReturn(ctx context.Context, ownerID string, record domain.ReturnRecord) error
}

type Notifier interface {
	Success(ownerID string, message string) domain.Notification
	Error(ownerID string, message string) domain.Notification
}

type Options struct {
	OwnerID  string
	Catalog  Catalog
	Returns  ReturnWriter
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// Engine withdraws whole product lots and keeps the return log.
type Engine struct {
	ownerID string
	catalog Catalog
	writer  ReturnWriter
	notify  Notifier
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	selected *domain.Product
	refund   *decimal.Decimal
	records  []domain.ReturnRecord
}

func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		ownerID: opts.OwnerID,
		catalog: opts.Catalog,
		writer:  opts.Returns,
		notify:  opts.Notifier,
		logger:  logging.OrNop(opts.Logger).Named("returns").With(zap.String("owner", opts.OwnerID)),
		now:     now,
	}
}

func (e *Engine) SelectProduct(productID string) (domain.ReturnSelection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	product, ok := e.catalog.Get(productID)
	if !ok {
		return e.selectionLocked(), fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	e.selected = &product
	e.refund = nil
	return e.selectionLocked(), nil
}

// SetRefundAmount stores the amount typed by the operator. It is checked
// against the ceiling only when the return is finalized.
func (e *Engine) SetRefundAmount(amount decimal.Decimal) (domain.ReturnSelection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.selected == nil {
		return e.selectionLocked(), domain.ErrNoSelection
	}
	e.refund = &amount
	return e.selectionLocked(), nil
}

func (e *Engine) Cancel() domain.ReturnSelection {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.selected = nil
	e.refund = nil
	return e.selectionLocked()
}

func (e *Engine) Selection() domain.ReturnSelection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectionLocked()
}

// Finalize removes the selected lot from the catalog and records the
// return. refund overrides the stored amount when given; with neither, the
// suggested ceiling is paid out.
func (e *Engine) Finalize(ctx context.Context, reason string, refund *decimal.Decimal) (domain.ReturnRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.selected == nil {
		return domain.ReturnRecord{}, domain.ErrNoSelection
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.ReturnRecord{}, domain.ErrMissingReason
	}

	amount := e.selected.RefundCeiling()
	if e.refund != nil {
		amount = *e.refund
	}
	if refund != nil {
		amount = *refund
	}
	if amount.IsNegative() {
		return domain.ReturnRecord{}, domain.ErrInvalidRefund
	}

	productID := e.selected.ID
	var record domain.ReturnRecord
	err := e.catalog.Update(ctx, func(products []domain.Product) ([]domain.Product, error) {
		idx := slices.IndexFunc(products, func(p domain.Product) bool { return p.ID == productID })
		if idx < 0 {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrStockChanged)
		}
		lot := products[idx]
		if amount.GreaterThan(lot.RefundCeiling().Add(Tolerance)) {
			return nil, domain.ErrRefundExceedsCeiling
		}

		record = domain.ReturnRecord{
			ID:                  xid.New("ret"),
			ProductID:           lot.ID,
			Product:             lot,
			ReturnDate:          e.now(),
			ActualMoneyReceived: amount,
			ReturnReason:        reason,
		}
		return slices.Delete(products, idx, idx+1), nil
	})
	if err != nil {
		return domain.ReturnRecord{}, err
	}

	e.records = append(e.records, record)
	e.selected = nil
	e.refund = nil

	if e.writer != nil {
		if err := e.writer.CreateReturn(context.WithoutCancel(ctx), e.ownerID, record); err != nil {
			e.logger.Error("persist return", zap.String("return", record.ID), zap.Error(err))
			if e.notify != nil {
				e.notify.Error(e.ownerID, "Failed to save return")
			}
		}
	}

	e.logger.Info("return finalized",
		zap.String("return", record.ID),
		zap.String("product", record.ProductID),
		zap.String("refund", amount.StringFixed(2)),
	)
	if e.notify != nil {
		e.notify.Success(e.ownerID, "Product returned successfully")
	}
	return record, nil
}

func (e *Engine) Returns() []domain.ReturnRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.records)
}

// RestoreReturns seeds the log with returns recorded in earlier sessions.
func (e *Engine) RestoreReturns(records []domain.ReturnRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(slices.Clone(records), e.records...)
}

func (e *Engine) selectionLocked() domain.ReturnSelection {
	if e.selected == nil {
		return domain.ReturnSelection{State: domain.ReturnIdle}
	}
	product := *e.selected
	suggested := product.RefundCeiling()
	sel := domain.ReturnSelection{
		State:           domain.ReturnSelected,
		Product:         &product,
		SuggestedRefund: &suggested,
	}
	if e.refund != nil {
		amount := *e.refund
		sel.RefundAmount = &amount
	}
	return sel
}
