package watcher

import (
	"context"
	"fmt"

	"github.com/comptox-ai/comptox-api-client/pkg/api"
)

// Result is the outcome of one successful poll.
type Result struct {
	Key  string
	URL  string
	Body []byte
}

// HooksPoller polls targets through the cached accessors, so watched queries
// share cache entries and in-flight requests with every other caller.
type HooksPoller struct {
	client *api.Client
	hooks  *api.Hooks
}

// NewHooksPoller builds a poller over hooks. client supplies request URLs for events.
func NewHooksPoller(client *api.Client, hooks *api.Hooks) *HooksPoller {
	return &HooksPoller{client: client, hooks: hooks}
}

// Poll refetches t and returns the body now held by the cache.
func (p *HooksPoller) Poll(ctx context.Context, t Target) (Result, error) {
	var (
		res Result
		err error
	)

	switch t.Endpoint {
	case api.EndpointFetchConfig:
		q := p.hooks.ConfigQuery()
		res.Key, err = q.Key(), q.Refetch(ctx).Error
		res.URL, _ = p.client.ConfigURL()
	case api.EndpointSearchNodes:
		q := p.hooks.SearchNodesQuery(t.Label, t.Field, t.Value)
		res.Key, err = q.Key(), q.Refetch(ctx).Error
		res.URL, _ = p.client.SearchNodesURL(t.Label, t.Field, t.Value)
	case api.EndpointFetchRelationshipsByNodeID:
		q := p.hooks.RelationshipsByNodeIDQuery(t.NodeID)
		res.Key, err = q.Key(), q.Refetch(ctx).Error
		res.URL, _ = p.client.RelationshipsURL(t.NodeID)
	default:
		return res, fmt.Errorf("unknown endpoint %q", t.Endpoint)
	}
	if err != nil {
		return res, err
	}

	res.Body = p.hooks.Cache().Snapshot(res.Key).Body
	return res, nil
}
