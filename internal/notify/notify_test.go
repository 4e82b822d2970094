package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedesk/backend/internal/domain"
)

func TestHubKeepsPerOwnerFeedNewestFirst(t *testing.T) {
	hub := NewHub(nil)

	hub.Success("owner-a", "Product added")
	hub.Error("owner-b", "Failed to load products")
	hub.Custom("owner-a", "Products Expiring Soon!", "2 products expire within 30 days", 2)

	feed := hub.Recent("owner-a", 0)
	require.Len(t, feed, 2)
	assert.Equal(t, domain.NotifyCustom, feed[0].Kind)
	assert.Equal(t, 2, feed[0].Count)
	assert.Equal(t, domain.NotifySuccess, feed[1].Kind)

	assert.Len(t, hub.Recent("owner-b", 10), 1)
}

func TestHubFeedIsBounded(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < defaultFeed+5; i++ {
		hub.Success("owner", fmt.Sprintf("message %d", i))
	}

	feed := hub.Recent("owner", 0)
	require.Len(t, feed, defaultFeed)
	assert.Equal(t, fmt.Sprintf("message %d", defaultFeed+4), feed[0].Message)
}

func TestHubPublishesToSubscribers(t *testing.T) {
	hub := NewHub(nil)

	var got []domain.Notification
	unsubscribe, err := hub.Subscribe(func(n domain.Notification) {
		got = append(got, n)
	})
	require.NoError(t, err)

	hub.Error("owner", "Failed to update products")
	unsubscribe()
	hub.Error("owner", "after unsubscribe")

	require.Len(t, got, 1)
	assert.Equal(t, "Failed to update products", got[0].Message)
	assert.NotEmpty(t, got[0].ID)
}
