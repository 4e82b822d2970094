package service

import (
	"context"
	"io"
	"time"

	"github.com/gocarina/gocsv"
)

type billCSVRow struct {
	BillNo          string `csv:"bill_no"`
	Date            string `csv:"date"`
	PaymentMethod   string `csv:"payment_method"`
	Items           int    `csv:"items"`
	Subtotal        string `csv:"subtotal"`
	Tax             string `csv:"gst"`
	Total           string `csv:"total"`
	Profit          string `csv:"profit"`
	PaymentReceived string `csv:"amount_paid"`
	Change          string `csv:"change"`
}

type returnCSVRow struct {
	ReturnID      string `csv:"return_id"`
	ProductID     string `csv:"product_id"`
	Name          string `csv:"name"`
	Specifics     string `csv:"specifics"`
	Quantity      int    `csv:"quantity"`
	PurchasePrice string `csv:"purchase_price"`
	Discount      string `csv:"discount"`
	Refunded      string `csv:"refunded"`
	Reason        string `csv:"reason"`
	ReturnDate    string `csv:"return_date"`
}

// ExportBillsCSV writes the owner's bill log, oldest first.
func (s *Service) ExportBillsCSV(ctx context.Context, w io.Writer) error {
	ws, _, err := s.current(ctx)
	if err != nil {
		return err
	}

	bills := ws.Billing.Bills()
	rows := make([]*billCSVRow, 0, len(bills))
	for _, b := range bills {
		quantity := 0
		for _, item := range b.Items {
			quantity += item.Quantity
		}
		rows = append(rows, &billCSVRow{
			BillNo:          b.ID,
			Date:            b.Date.UTC().Format(time.RFC3339),
			PaymentMethod:   string(b.PaymentMethod),
			Items:           quantity,
			Subtotal:        b.Subtotal.StringFixed(2),
			Tax:             b.Tax.StringFixed(2),
			Total:           b.Total.StringFixed(2),
			Profit:          b.Profit.StringFixed(2),
			PaymentReceived: b.PaymentReceived.StringFixed(2),
			Change:          b.Change.StringFixed(2),
		})
	}
	return gocsv.Marshal(rows, w)
}

// ExportReturnsCSV writes the owner's return log, oldest first.
func (s *Service) ExportReturnsCSV(ctx context.Context, w io.Writer) error {
	ws, _, err := s.current(ctx)
	if err != nil {
		return err
	}

	records := ws.Returns.Returns()
	rows := make([]*returnCSVRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, &returnCSVRow{
			ReturnID:      r.ID,
			ProductID:     r.ProductID,
			Name:          r.Name,
			Specifics:     r.Specifics,
			Quantity:      r.Quantity,
			PurchasePrice: r.PurchasePrice.StringFixed(2),
			Discount:      r.Discount.StringFixed(2),
			Refunded:      r.ActualMoneyReceived.StringFixed(2),
			Reason:        r.ReturnReason,
			ReturnDate:    r.ReturnDate.UTC().Format(time.RFC3339),
		})
	}
	return gocsv.Marshal(rows, w)
}
