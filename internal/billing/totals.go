package billing

import (
	"github.com/shopspring/decimal"

	"onedesk/backend/internal/domain"
)

// ComputeTotals prices lines against the given catalog snapshot. Line
// prices are the snapshots taken when each line was added; profit uses the
// catalog's current margin and a product no longer listed contributes none.
func ComputeTotals(lines []domain.BillItem, products []domain.Product) domain.BillTotals {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	subtotal := decimal.Zero
	profit := decimal.Zero
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		subtotal = subtotal.Add(line.Price.Mul(qty))
		if p, ok := byID[line.ProductID]; ok {
			profit = profit.Add(p.MRP.Sub(p.PurchasePrice).Mul(qty))
		}
	}

	tax := subtotal.Mul(domain.TaxRate)
	return domain.BillTotals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
		Profit:   profit,
	}
}
