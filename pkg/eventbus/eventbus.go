package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is the envelope published on quota channels so the panel UI can
// react to changes without polling.
type Event struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// QuotaEvent describes a change to one user's quota state.
type QuotaEvent struct {
	UserID   uint   `json:"user_id"`
	Resource string `json:"resource,omitempty"`
	Delta    int    `json:"delta,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ServerEvent describes a committed edit to one server's resource fields.
type ServerEvent struct {
	ServerID uint `json:"server_id"`
	UserID   uint `json:"user_id"`
}

const (
	ChannelQuota    = "quotad:events:quota"
	ChannelServer   = "quotad:events:server"
	ChannelSettings = "quotad:events:settings"
)

const (
	EventQuotaAdjusted   = "quota_adjusted"
	EventQuotaUpdated    = "quota_updated"
	EventQuotaDeleted    = "quota_deleted"
	EventServerEdited    = "server_resources_updated"
	EventSettingsChanged = "settings_changed"
)

type Bus struct {
	client redis.UniversalClient
}

func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client}
}

func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}, nil
}

func (b *Bus) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context, channels ...string) <-chan *Event {
	sub := b.client.Subscribe(ctx, channels...)
	ch := make(chan *Event, 100)

	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			ch <- &event
		}
	}()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return ch
}
