package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Subscription delivers ledger events published after it was created.
// Pub/Sub gives no history; use ReadEvents to replay the outbox.
type Subscription struct {
	events    chan *Event
	errors    chan error
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Events returns a channel that receives events as they are committed.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Event {
	return s.events
}

// Errors returns a channel that receives decode errors. Malformed messages are
// reported here and skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and releases the Redis connection.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
	})
	return nil
}

// SubscribeEvents subscribes to the instance's event channel.
// Caller must call subscription.Close() when done.
func (c *Client) SubscribeEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, EventsChannel(c.instanceName))

	// Wait for the subscription to be confirmed so no event committed after
	// this call returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to ledger events: %w", err)
	}

	eventsChan := make(chan *Event, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal ledger event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
