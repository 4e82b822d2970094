package billing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/logging"
	"onedesk/backend/internal/xid"
)

type Catalog interface {
	Get(id string) (domain.Product, bool)
	Snapshot() []domain.Product
	Update(ctx context.Context, fn func(products []domain.Product) ([]domain.Product, error)) error
}

type BillWriter interface {
	CreateBill(ctx context.Context, bill domain.Bill) error
}

// ReceiptSink takes a committed bill for printing.
type ReceiptSink interface {
	Emit(ctx context.Context, bill domain.Bill) error
}

type Notifier interface {
	Success(ownerID string, message string) domain.Notification
	Error(ownerID string, message string) domain.Notification
}

type Options struct {
	OwnerID  string
	Catalog  Catalog
	Bills    BillWriter
	Receipts ReceiptSink
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// Engine holds one open cart and the log of bills committed from it.
type Engine struct {
	ownerID  string
	catalog  Catalog
	writer   BillWriter
	receipts ReceiptSink
	notify   Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	lines  []domain.BillItem
	tender *decimal.Decimal
	bills  []domain.Bill
}

func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		ownerID:  opts.OwnerID,
		catalog:  opts.Catalog,
		writer:   opts.Bills,
		receipts: opts.Receipts,
		notify:   opts.Notifier,
		logger:   logging.OrNop(opts.Logger).Named("billing").With(zap.String("owner", opts.OwnerID)),
		now:      now,
	}
}

// AddItem puts one unit of the product in the cart. A new line is priced at
// the product's MRP as of now.
func (e *Engine) AddItem(productID string) (domain.Cart, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	product, ok := e.catalog.Get(productID)
	if !ok {
		return e.cartLocked(), fmt.Errorf("product %s: %w", productID, domain.ErrInvalidProduct)
	}
	if product.Quantity <= 0 {
		return e.cartLocked(), domain.ErrInsufficientStock
	}

	if idx := e.lineIndex(productID); idx >= 0 {
		if e.lines[idx].Quantity+1 > product.Quantity {
			return e.cartLocked(), domain.ErrInsufficientStock
		}
		e.lines[idx].Quantity++
		return e.cartLocked(), nil
	}

	e.lines = append(e.lines, domain.BillItem{
		ProductID: product.ID,
		Quantity:  1,
		Price:     product.MRP,
		Name:      product.Name,
		Specifics: product.Specifics,
	})
	return e.cartLocked(), nil
}

func (e *Engine) SetLineQuantity(productID string, qty int) (domain.Cart, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.lineIndex(productID)
	if idx < 0 {
		return e.cartLocked(), fmt.Errorf("line %s: %w", productID, domain.ErrInvalidProduct)
	}
	if qty < 1 {
		return e.cartLocked(), domain.ErrInvalidQuantity
	}
	product, ok := e.catalog.Get(productID)
	if !ok || qty > product.Quantity {
		return e.cartLocked(), domain.ErrInsufficientStock
	}

	e.lines[idx].Quantity = qty
	return e.cartLocked(), nil
}

func (e *Engine) RemoveLine(productID string) domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx := e.lineIndex(productID); idx >= 0 {
		e.lines = slices.Delete(e.lines, idx, idx+1)
	}
	return e.cartLocked()
}

func (e *Engine) Clear() domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lines = nil
	e.tender = nil
	return e.cartLocked()
}

// SetTender records the amount the customer offered.
func (e *Engine) SetTender(amount decimal.Decimal) (domain.Cart, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount.IsNegative() {
		return e.cartLocked(), domain.ErrInsufficientPayment
	}
	e.tender = &amount
	return e.cartLocked(), nil
}

func (e *Engine) Cart() domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cartLocked()
}

// Commit checks payment and stock against the catalog as it is at this
// instant, takes the stock, and records the bill. Nothing changes when any
// check fails.
func (e *Engine) Commit(ctx context.Context, method domain.PaymentMethod, received decimal.Decimal) (domain.Bill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.lines) == 0 {
		return domain.Bill{}, domain.ErrEmptyCart
	}
	if !method.Valid() {
		return domain.Bill{}, domain.ErrInvalidPaymentMethod
	}

	var bill domain.Bill
	err := e.catalog.Update(ctx, func(products []domain.Product) ([]domain.Product, error) {
		totals := ComputeTotals(e.lines, products)
		if received.LessThan(totals.Total) {
			return nil, domain.ErrInsufficientPayment
		}

		byID := make(map[string]int, len(products))
		for i, p := range products {
			byID[p.ID] = i
		}
		items := make([]domain.BillItem, 0, len(e.lines))
		for _, line := range e.lines {
			idx, ok := byID[line.ProductID]
			if !ok || products[idx].Quantity < line.Quantity {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, domain.ErrStockChanged)
			}
			products[idx].Quantity -= line.Quantity

			item := line
			item.Name = products[idx].Name
			item.Specifics = products[idx].Specifics
			item.LineTotal = line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			items = append(items, item)
		}

		bill = domain.Bill{
			ID:              xid.ReceiptNumber(),
			UserID:          e.ownerID,
			Items:           items,
			Subtotal:        totals.Subtotal,
			Tax:             totals.Tax,
			Total:           totals.Total,
			Profit:          totals.Profit,
			Date:            e.now(),
			PaymentMethod:   method,
			PaymentReceived: received,
			Change:          received.Sub(totals.Total),
		}
		return products, nil
	})
	if err != nil {
		return domain.Bill{}, err
	}

	e.bills = append(e.bills, bill)
	e.lines = nil
	e.tender = nil

	if e.writer != nil {
		if err := e.writer.CreateBill(context.WithoutCancel(ctx), bill); err != nil {
			e.logger.Error("persist bill", zap.String("bill", bill.ID), zap.Error(err))
			e.notifyError("Failed to save bill")
		}
	}
	if e.receipts != nil {
		if err := e.receipts.Emit(ctx, bill); err != nil {
			e.logger.Warn("print receipt", zap.String("bill", bill.ID), zap.Error(err))
			e.notifyError("Failed to print receipt")
		}
	}

	e.logger.Info("bill committed",
		zap.String("bill", bill.ID),
		zap.Int("lines", len(bill.Items)),
		zap.String("total", bill.Total.StringFixed(2)),
		zap.String("method", string(method)),
	)
	if e.notify != nil {
		e.notify.Success(e.ownerID, "Bill generated successfully")
	}
	return bill, nil
}

// Bills returns the committed bill log, oldest first.
func (e *Engine) Bills() []domain.Bill {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Bill, len(e.bills))
	for i, b := range e.bills {
		out[i] = cloneBill(b)
	}
	return out
}

func (e *Engine) Bill(id string) (domain.Bill, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, b := range e.bills {
		if b.ID == id {
			return cloneBill(b), true
		}
	}
	return domain.Bill{}, false
}

// RestoreBills seeds the log with bills recorded in earlier sessions.
func (e *Engine) RestoreBills(bills []domain.Bill) {
	e.mu.Lock()
	defer e.mu.Unlock()

	restored := make([]domain.Bill, 0, len(bills)+len(e.bills))
	for _, b := range bills {
		restored = append(restored, cloneBill(b))
	}
	e.bills = append(restored, e.bills...)
}

func (e *Engine) cartLocked() domain.Cart {
	lines := slices.Clone(e.lines)
	totals := ComputeTotals(lines, e.catalog.Snapshot())
	for i := range lines {
		lines[i].LineTotal = lines[i].Price.Mul(decimal.NewFromInt(int64(lines[i].Quantity)))
	}

	cart := domain.Cart{Items: lines, Totals: totals}
	if cart.Items == nil {
		cart.Items = []domain.BillItem{}
	}
	switch {
	case len(lines) == 0:
		cart.State = domain.CartEmpty
	case e.tender != nil && !e.tender.LessThan(totals.Total):
		cart.State = domain.CartReadyToPay
		change := e.tender.Sub(totals.Total)
		cart.Change = &change
	default:
		cart.State = domain.CartBuilding
	}
	if e.tender != nil {
		tender := *e.tender
		cart.Tender = &tender
	}
	return cart
}

func (e *Engine) lineIndex(productID string) int {
	return slices.IndexFunc(e.lines, func(line domain.BillItem) bool {
		return line.ProductID == productID
	})
}

func (e *Engine) notifyError(message string) {
	if e.notify != nil {
		e.notify.Error(e.ownerID, message)
	}
}

func cloneBill(src domain.Bill) domain.Bill {
	out := src
	out.Items = slices.Clone(src.Items)
	return out
}
