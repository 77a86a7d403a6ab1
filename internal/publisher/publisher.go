// Package publisher defines the interface for pushing completion
// notifications onto an external message queue.
package publisher

import "context"

// Publisher sends one payload to a named topic and returns the broker-side
// message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}
