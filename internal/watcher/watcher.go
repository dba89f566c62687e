package watcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/comptox-ai/comptox-api-client/internal/logger"
	"github.com/comptox-ai/comptox-api-client/internal/metrics"
	"github.com/comptox-ai/comptox-api-client/pkg/publishers"
)

// Service runs watch passes: poll every target, publish bodies not seen before.
type Service struct {
	poller    Poller
	publisher EventPublisher
	digests   DigestStore
	log       logger.Logger
}

// NewService wires a watcher. A nil digest store republishes every body.
func NewService(poller Poller, pub EventPublisher, log logger.Logger, digests DigestStore) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Service{
		poller:    poller,
		publisher: pub,
		digests:   digests,
		log:       log,
	}
}

// Run executes one pass over targets. A failing target does not stop the others.
func (s *Service) Run(ctx context.Context, targets []Target) error {
	if s == nil || s.poller == nil {
		return fmt.Errorf("watcher service is not initialized")
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets configured for watching")
	}

	var errs []error
	for _, t := range targets {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.runTarget(ctx, t); err != nil {
			errs = append(errs, err)
			s.log.ErrorObj("target poll failed", "target_error", map[string]any{
				"target_id": t.ID,
				"error":     err.Error(),
			})
		}
	}
	return errors.Join(errs...)
}

func (s *Service) runTarget(ctx context.Context, t Target) error {
	res, err := s.poller.Poll(ctx, t)
	if err != nil {
		return fmt.Errorf("poll target %s: %w", t.ID, err)
	}

	digest := Digest(res.Key, res.Body)
	if s.digests != nil {
		seen, err := s.digests.SeenDigest(digest)
		if err != nil {
			return fmt.Errorf("check digest for target %s: %w", t.ID, err)
		}
		if seen {
			s.log.DebugObj("target unchanged", "target_result", map[string]any{
				"target_id": t.ID,
				"digest":    digest,
			})
			return nil
		}
	}

	evt := publishers.NewEvent(t.ID, t.Endpoint, res.Key, res.URL, digest, res.Body)
	delivered := 0
	var pubErr error
	if s.publisher != nil {
		delivered, pubErr = s.publisher.Publish(ctx, evt)
	}
	if delivered > 0 {
		metrics.ChangesPublished.WithLabelValues(t.ID).Add(float64(delivered))
	}

	// a change nobody received is retried on the next pass
	if pubErr != nil && delivered == 0 {
		return fmt.Errorf("publish change for target %s: %w", t.ID, pubErr)
	}
	if s.digests != nil {
		if err := s.digests.MarkDigest(digest); err != nil {
			return errors.Join(pubErr, fmt.Errorf("mark digest for target %s: %w", t.ID, err))
		}
	}

	s.log.InfoObj("target changed", "target_result", map[string]any{
		"target_id":  t.ID,
		"query_key":  res.Key,
		"digest":     digest,
		"bytes":      len(res.Body),
		"deliveries": delivered,
	})
	if pubErr != nil {
		return fmt.Errorf("publish change for target %s: %w", t.ID, pubErr)
	}
	return nil
}

// Digest fingerprints a query body. JSON bodies are canonicalized first so
// object key order does not register as a change.
func Digest(key string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte{'\n'})
	h.Write(canonicalJSON(body))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalJSON(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return trimmed
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return trimmed
	}
	out, err := json.Marshal(v)
	if err != nil {
		return trimmed
	}
	return out
}
