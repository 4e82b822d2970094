package expiry

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"onedesk/backend/internal/cache"
	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/logging"
)

const (
	Window      = 30 * 24 * time.Hour
	AlertTitle  = "Products Expiring Soon!"
	criticalMax = 7
	warningMax  = 14
)

// Expiring lists the products whose expiry falls in [now, now+Window], both
// ends included, soonest first.
func Expiring(products []domain.Product, now time.Time) []domain.ExpiringProduct {
	end := now.Add(Window)
	out := make([]domain.ExpiringProduct, 0, 8)
	for _, p := range products {
		if p.ExpiryDate.Before(now) || p.ExpiryDate.After(end) {
			continue
		}
		days := DaysUntilExpiry(p.ExpiryDate, now)
		out = append(out, domain.ExpiringProduct{Product: p, DaysUntilExpiry: days, Tier: TierFor(days)})
	}
	slices.SortStableFunc(out, func(a, b domain.ExpiringProduct) int {
		return a.ExpiryDate.Compare(b.ExpiryDate)
	})
	return out
}

// DaysUntilExpiry rounds partial days up.
func DaysUntilExpiry(expiry time.Time, now time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}

// TierFor buckets a day count for display. It never affects filtering.
func TierFor(days int) domain.ExpiryTier {
	switch {
	case days <= criticalMax:
		return domain.ExpiryCritical
	case days <= warningMax:
		return domain.ExpiryWarning
	default:
		return domain.ExpiryNormal
	}
}

type Notifier interface {
	Custom(ownerID string, title string, message string, count int) domain.Notification
}

// Monitor raises the expiry alert once per distinct set of expiring lots.
type Monitor struct {
	state  cache.ExpiryStateStore
	notify Notifier
	logger *zap.Logger

	mu sync.Mutex
}

func NewMonitor(state cache.ExpiryStateStore, notify Notifier, logger *zap.Logger) *Monitor {
	if state == nil {
		state = cache.NewMemoryExpiryState()
	}
	return &Monitor{
		state:  state,
		notify: notify,
		logger: logging.OrNop(logger).Named("expiry"),
	}
}

// Evaluate recomputes the expiring set for the owner and notifies when the
// set is non-empty and its membership differs from the last alert. An empty
// set clears the memory so the next non-empty set alerts again.
func (m *Monitor) Evaluate(ctx context.Context, ownerID string, products []domain.Product, now time.Time) (domain.ExpiryReport, error) {
	items := Expiring(products, now)
	report := domain.ExpiryReport{From: now, To: now.Add(Window), Count: len(items), Items: items}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(items) == 0 {
		if err := m.state.Reset(ctx, ownerID); err != nil {
			return report, fmt.Errorf("reset expiry state: %w", err)
		}
		return report, nil
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	slices.Sort(ids)

	last, ok, err := m.state.LastNotified(ctx, ownerID)
	if err != nil {
		return report, fmt.Errorf("read expiry state: %w", err)
	}
	if ok && slices.Equal(last, ids) {
		return report, nil
	}

	if err := m.state.SetLastNotified(ctx, ownerID, ids); err != nil {
		return report, fmt.Errorf("store expiry state: %w", err)
	}
	if m.notify != nil {
		m.notify.Custom(ownerID, AlertTitle, alertMessage(len(items)), len(items))
	}
	m.logger.Info("expiry alert raised", zap.String("owner", ownerID), zap.Int("count", len(items)))
	report.Notified = true
	return report, nil
}

func alertMessage(count int) string {
	if count == 1 {
		return "1 product is expiring within 30 days"
	}
	return fmt.Sprintf("%d products are expiring within 30 days", count)
}
