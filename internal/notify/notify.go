// Package notify pushes video status transitions to interested subscribers
// over Redis pub/sub. Delivery follows publish order per channel; nothing is
// guaranteed across channels, and a dropped connection is the subscriber's
// problem: re-subscribe and re-read the job row.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"propvid/internal/domain"
	"propvid/internal/infra"
)

// Event is one status transition of a video job.
type Event struct {
	VideoID  string             `json:"video_id"`
	UserID   string             `json:"user_id"`
	Status   domain.VideoStatus `json:"status"`
	Progress int                `json:"progress"`
	VideoURL string             `json:"video_url,omitempty"`
	Error    string             `json:"error,omitempty"`
	At       time.Time          `json:"at"`
}

// VideoChannel names the per-job channel.
func VideoChannel(videoID string) string {
	return "videos.status." + videoID
}

// UserChannel names the per-user channel carrying all of a user's jobs.
func UserChannel(userID string) string {
	return "videos.user." + userID
}

// Publisher fans status events out to the job and user channels.
type Publisher struct {
	client *redis.Client
	logger infra.Logger
}

func NewPublisher(client *redis.Client, logger infra.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish sends the event to both scopes. Subscribers come and go; publishing
// into a channel nobody listens on is fine.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	for _, channel := range []string{VideoChannel(ev.VideoID), UserChannel(ev.UserID)} {
		if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
			return fmt.Errorf("notify: publish %s: %w", channel, err)
		}
	}
	p.logger.Debug().Str("video_id", ev.VideoID).Str("status", string(ev.Status)).Msg("notify: published")
	return nil
}

// Subscriber exposes cancellable event streams.
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// SubscribeVideo streams events for one job. The returned cancel func closes
// the stream; callers are expected to cancel once they see a terminal status.
func (s *Subscriber) SubscribeVideo(ctx context.Context, videoID string) (<-chan Event, func()) {
	return s.subscribe(ctx, VideoChannel(videoID))
}

// SubscribeUser streams events for every job owned by the user.
func (s *Subscriber) SubscribeUser(ctx context.Context, userID string) (<-chan Event, func()) {
	return s.subscribe(ctx, UserChannel(userID))
}

func (s *Subscriber) subscribe(ctx context.Context, channel string) (<-chan Event, func()) {
	pubsub := s.client.Subscribe(ctx, channel)
	out := make(chan Event)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }
}
