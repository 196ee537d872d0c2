package notify

import (
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/pubsub"
)

// FeedChanged is published after every append, eviction or clear.
type FeedChanged struct {
	Count  int    `json:"count"`
	Newest string `json:"newest,omitempty"`
}

// ToastExpired names the notification whose toast went away.
type ToastExpired struct {
	ID string `json:"id"`
}

// BannerChanged is published when a banner is shown or hidden.
type BannerChanged struct {
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

var (
	TopicFeedChanged = pubsub.NewEvent[FeedChanged]("notify.feed.changed",
		"Notification feed contents changed")

	TopicToastShown = pubsub.NewEvent[domain.Notification]("notify.toast.shown",
		"A notification popped as a toast")

	TopicToastExpired = pubsub.NewEvent[ToastExpired]("notify.toast.expired",
		"A toast timed out")

	TopicBannerChanged = pubsub.NewEvent[BannerChanged]("notify.banner.changed",
		"System banner shown or hidden")
)
