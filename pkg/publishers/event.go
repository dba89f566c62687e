package publishers

import (
	"encoding/json"
	"time"
)

// Event announces that a watched query returned a body not seen before.
type Event struct {
	Target      string          `json:"target"`
	Endpoint    string          `json:"endpoint"`
	QueryKey    string          `json:"query_key"`
	URL         string          `json:"url"`
	Digest      string          `json:"digest"`
	Payload     json.RawMessage `json:"payload"`
	CollectedAt time.Time       `json:"collected_at"`
}

// NewEvent constructs an Event stamped with the current UTC time.
func NewEvent(target, endpoint, queryKey, url, digest string, payload []byte) Event {
	evt := Event{
		Target:      target,
		Endpoint:    endpoint,
		QueryKey:    queryKey,
		URL:         url,
		Digest:      digest,
		CollectedAt: time.Now().UTC(),
	}
	if len(payload) > 0 && json.Valid(payload) {
		evt.Payload = append(json.RawMessage(nil), payload...)
	}
	return evt
}

// attributes are the routing fields copied onto broker message attributes.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"target":   e.Target,
		"endpoint": e.Endpoint,
		"digest":   e.Digest,
	}
}
