package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"onedesk/backend/internal/domain"
)

// DailyReport summarizes one UTC day of the owner's bills and returns.
// date is YYYY-MM-DD; empty means today.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	ws, actor, err := s.current(ctx)
	if err != nil {
		return domain.DailyReport{}, err
	}

	day := s.now().UTC().Truncate(24 * time.Hour)
	if date != "" {
		if day, err = parseDay(date); err != nil {
			return domain.DailyReport{}, err
		}
	}
	end := day.Add(24 * time.Hour)
	inDay := func(at time.Time) bool {
		return !at.Before(day) && at.Before(end)
	}

	report := domain.DailyReport{
		Date:          day.Format("2006-01-02"),
		UserID:        actor.UserID,
		GrossSales:    decimal.Zero,
		Tax:           decimal.Zero,
		NetSales:      decimal.Zero,
		Profit:        decimal.Zero,
		Refunded:      decimal.Zero,
		AverageTicket: decimal.Zero,
		MedianTicket:  decimal.Zero,
		ByPayment:     []domain.DailyReportPayment{},
	}

	byMethod := map[domain.PaymentMethod]*domain.DailyReportPayment{}
	tickets := make(stats.Float64Data, 0, 32)
	for _, bill := range ws.Billing.Bills() {
		if !inDay(bill.Date) {
			continue
		}
		report.Bills++
		report.GrossSales = report.GrossSales.Add(bill.Total)
		report.Tax = report.Tax.Add(bill.Tax)
		report.NetSales = report.NetSales.Add(bill.Subtotal)
		report.Profit = report.Profit.Add(bill.Profit)
		tickets = append(tickets, bill.Total.InexactFloat64())

		entry, ok := byMethod[bill.PaymentMethod]
		if !ok {
			entry = &domain.DailyReportPayment{PaymentMethod: bill.PaymentMethod, Total: decimal.Zero}
			byMethod[bill.PaymentMethod] = entry
		}
		entry.Bills++
		entry.Total = entry.Total.Add(bill.Total)
	}

	for _, record := range ws.Returns.Returns() {
		if !inDay(record.ReturnDate) {
			continue
		}
		report.Returns++
		report.Refunded = report.Refunded.Add(record.ActualMoneyReceived)
	}

	if report.Bills > 0 {
		report.AverageTicket = report.GrossSales.DivRound(decimal.NewFromInt(int64(report.Bills)), 2)
		if median, err := stats.Median(tickets); err == nil {
			report.MedianTicket = decimal.NewFromFloat(median).Round(2)
		}
	}

	for _, entry := range byMethod {
		report.ByPayment = append(report.ByPayment, *entry)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.DailyReportPayment) int {
		return strings.Compare(string(a.PaymentMethod), string(b.PaymentMethod))
	})
	return report, nil
}
