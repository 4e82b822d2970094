package receipt

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/logging"
)

const rule = "-------------------"

type Document struct {
	BillID       string `json:"bill_id"`
	Text         string `json:"text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
	escpos       []byte
}

// Bytes returns the raw ESC/POS job.
func (d Document) Bytes() []byte {
	return d.escpos
}

// Render lays out a committed bill. Lines carry their resolved names, so
// the bill alone is enough.
func Render(shop string, bill domain.Bill) Document {
	lines := []string{
		shop,
		rule,
		"Bill No: " + bill.ID,
		"Date: " + bill.Date.Format("02/01/2006, 15:04:05"),
		"",
		"Items:",
	}
	for _, item := range bill.Items {
		name := item.Name
		if item.Specifics != "" {
			name += " (" + item.Specifics + ")"
		}
		lines = append(lines, fmt.Sprintf("%s x%d - ₹%s", name, item.Quantity, item.LineTotal.StringFixed(2)))
	}
	lines = append(lines,
		"",
		"Subtotal: ₹"+bill.Subtotal.StringFixed(2),
		"GST (18%): ₹"+bill.Tax.StringFixed(2),
		"Total: ₹"+bill.Total.StringFixed(2),
		"",
		"Payment Method: "+strings.ToUpper(string(bill.PaymentMethod)),
		"Amount Paid: ₹"+bill.PaymentReceived.StringFixed(2),
		"Change: ₹"+bill.Change.StringFixed(2),
		"",
		"Thank you for shopping with us!",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(strings.ReplaceAll(line, "₹", "Rs."))...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return Document{
		BillID:       bill.ID,
		Text:         strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		FileName:     fmt.Sprintf("receipt-%s.bin", bill.ID),
		escpos:       escpos,
	}
}

type Printer interface {
	Print(ctx context.Context, doc Document) error
}

// Channel renders committed bills and hands them to a printer.
type Channel struct {
	Shop    string
	Printer Printer
}

func (c Channel) Emit(ctx context.Context, bill domain.Bill) error {
	if c.Printer == nil {
		return nil
	}
	return c.Printer.Print(ctx, Render(c.Shop, bill))
}

// LogPrinter writes the receipt text to the log. Used when no printer
// bridge is configured.
type LogPrinter struct {
	Logger *zap.Logger
}

func (p LogPrinter) Print(_ context.Context, doc Document) error {
	logging.OrNop(p.Logger).Info("receipt", zap.String("bill", doc.BillID), zap.String("text", doc.Text))
	return nil
}

// SpoolPrinter drops ESC/POS jobs into a directory watched by the local
// printer bridge. Files appear atomically via rename.
type SpoolPrinter struct {
	Dir string
}

func (p SpoolPrinter) Print(_ context.Context, doc Document) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}
	final := filepath.Join(p.Dir, doc.FileName)
	tmp, err := os.CreateTemp(p.Dir, ".spool-*")
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	if _, err := tmp.Write(doc.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write spool file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close spool file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("publish spool file: %w", err)
	}
	return nil
}
