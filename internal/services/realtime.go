package services

import (
	"context"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"
)

// Publisher pushes realtime updates to connected storefront clients.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// PubNubPublisher broadcasts over PubNub. Publish failures are logged
// and swallowed: realtime updates are advisory and must never fail a
// checkout.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pubKey, subKey, userID string) *PubNubPublisher {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = pubKey
	cfg.SubscribeKey = subKey

	return &PubNubPublisher{pn: pubnub.NewPubNub(cfg)}
}

func (p *PubNubPublisher) Publish(_ context.Context, channel string, message interface{}) error {
	_, _, err := p.pn.Publish().Channel(channel).Message(message).Execute()
	if err != nil {
		slog.Warn("realtime publish failed", "channel", channel, "error", err)
	}
	return nil
}

// NoopPublisher is used when no realtime credentials are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, interface{}) error { return nil }
