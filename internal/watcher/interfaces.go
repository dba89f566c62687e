package watcher

import (
	"context"

	"github.com/comptox-ai/comptox-api-client/pkg/publishers"
)

// Poller refetches a target and returns its current raw body.
type Poller interface {
	Poll(ctx context.Context, t Target) (Result, error)
}

// DigestStore remembers which response digests were already published.
type DigestStore interface {
	SeenDigest(id string) (bool, error)
	MarkDigest(id string) error
}

// EventPublisher fans change events out to downstream sinks.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}
