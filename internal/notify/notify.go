package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/logging"
	"onedesk/backend/internal/xid"
)

const (
	topic       = "notification"
	defaultFeed = 50
)

// Hub delivers operator notifications. Every message is logged, kept in a
// bounded per-owner feed and published on the bus for live subscribers.
type Hub struct {
	bus    EventBus.Bus
	logger *zap.Logger
	limit  int

	mu    sync.RWMutex
	feeds map[string][]domain.Notification
	now   func() time.Time
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		bus:    EventBus.New(),
		logger: logging.OrNop(logger).Named("notify"),
		limit:  defaultFeed,
		feeds:  make(map[string][]domain.Notification),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) Success(ownerID string, message string) domain.Notification {
	return h.publish(domain.Notification{UserID: ownerID, Kind: domain.NotifySuccess, Message: message})
}

func (h *Hub) Error(ownerID string, message string) domain.Notification {
	return h.publish(domain.Notification{UserID: ownerID, Kind: domain.NotifyError, Message: message})
}

func (h *Hub) Custom(ownerID string, title string, message string, count int) domain.Notification {
	return h.publish(domain.Notification{
		UserID:  ownerID,
		Kind:    domain.NotifyCustom,
		Title:   title,
		Message: message,
		Count:   count,
	})
}

// Subscribe registers fn for every notification of every owner. The
// returned func removes the subscription.
func (h *Hub) Subscribe(fn func(domain.Notification)) (func(), error) {
	if err := h.bus.Subscribe(topic, fn); err != nil {
		return nil, err
	}
	return func() {
		_ = h.bus.Unsubscribe(topic, fn)
	}, nil
}

// Recent returns up to limit notifications for the owner, newest first.
func (h *Hub) Recent(ownerID string, limit int) []domain.Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()

	feed := h.feeds[ownerID]
	if limit <= 0 || limit > len(feed) {
		limit = len(feed)
	}
	out := make([]domain.Notification, 0, limit)
	for i := len(feed) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, feed[i])
	}
	return out
}

// Forget drops the owner's feed, used when their session ends.
func (h *Hub) Forget(ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.feeds, ownerID)
}

func (h *Hub) publish(n domain.Notification) domain.Notification {
	n.ID = xid.New("ntf")
	n.CreatedAt = h.now()

	fields := []zap.Field{
		zap.String("owner", n.UserID),
		zap.String("kind", string(n.Kind)),
		zap.String("message", n.Message),
	}
	if n.Count > 0 {
		fields = append(fields, zap.Int("count", n.Count))
	}
	if n.Kind == domain.NotifyError {
		h.logger.Warn("notification", fields...)
	} else {
		h.logger.Info("notification", fields...)
	}

	h.mu.Lock()
	feed := append(h.feeds[n.UserID], n)
	if len(feed) > h.limit {
		feed = slices.Clone(feed[len(feed)-h.limit:])
	}
	h.feeds[n.UserID] = feed
	h.mu.Unlock()

	h.bus.Publish(topic, n)
	return n
}
