package service

import (
	"context"

	"pairchat/internal/models"
)

// Conn is the live connection handle the transport layer hands to the core.
// Send frames and delivers one event to the remote client; implementations
// must be safe for use from the dispatch goroutine and the transport's
// keepalive machinery concurrently.
type Conn interface {
	Send(event models.EventKind, data interface{}) error
	Close() error
}

// MessageStore is what the routing engine needs from the durable store.
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
	History(ctx context.Context, owner string) ([]models.Message, error)
	EnqueuePending(ctx context.Context, recipient string, msg *models.Message) error
	DrainPending(ctx context.Context, recipient string) ([]models.Message, error)
	Remove(ctx context.Context, messageID string) error
}
