package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel carrying storage change events.
const DefaultChannel = "edutend:storage"

// RedisBus broadcasts store changes to other processes. Events published
// here do not loop back to the publishing process; pair with a Local bus
// via Fanout when same-process delivery is also wanted.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus builds a bus on the given channel ("" uses DefaultChannel).
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel}
}

// Publish sends the event to all remote subscribers.
func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe streams remote events to fn until the cancel func runs.
func (b *RedisBus) Subscribe(fn func(Event)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.client.Subscribe(ctx, b.channel)
	go func() {
		ch := sub.Channel()
		for msg := range ch {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("notify: dropping malformed event: %v", err)
				continue
			}
			fn(evt)
		}
	}()
	return func() {
		cancel()
		_ = sub.Close()
	}
}
