package api

import (
	"context"

	"github.com/comptox-ai/comptox-api-client/internal/domain"
	"github.com/comptox-ai/comptox-api-client/pkg/query"
)

// Hooks exposes one cached accessor per endpoint, bound to a shared query client.
type Hooks struct {
	api   *Client
	cache *query.Client
}

// NewHooks binds api to cache. A nil cache gets a fresh in-memory query client.
func NewHooks(api *Client, cache *query.Client) *Hooks {
	if cache == nil {
		cache = query.NewClient(query.Options{})
	}
	return &Hooks{api: api, cache: cache}
}

// Cache returns the underlying query client, e.g. for invalidation.
func (h *Hooks) Cache() *query.Client { return h.cache }

// ConfigQuery is the accessor for FetchConfig.
func (h *Hooks) ConfigQuery() *query.Query[domain.Config] {
	return query.New[domain.Config](h.cache, ConfigKey(), func(ctx context.Context) ([]byte, error) {
		return h.api.FetchConfigRaw(ctx)
	})
}

// SearchNodesQuery is the accessor for SearchNodes.
func (h *Hooks) SearchNodesQuery(label, field, value string) *query.Query[[]domain.Node] {
	return query.New[[]domain.Node](h.cache, SearchNodesKey(label, field, value), func(ctx context.Context) ([]byte, error) {
		return h.api.SearchNodesRaw(ctx, label, field, value)
	})
}

// RelationshipsByNodeIDQuery is the accessor for FetchRelationshipsByNodeID.
func (h *Hooks) RelationshipsByNodeIDQuery(nodeID string) *query.Query[[]domain.Relationship] {
	return query.New[[]domain.Relationship](h.cache, RelationshipsKey(nodeID), func(ctx context.Context) ([]byte, error) {
		return h.api.RelationshipsRaw(ctx, nodeID)
	})
}

// ConfigKey is the cache key of FetchConfig.
func ConfigKey() string { return query.Key(EndpointFetchConfig) }

// SearchNodesKey is the cache key of one search tuple.
func SearchNodesKey(label, field, value string) string {
	return query.Key(EndpointSearchNodes, label, field, value)
}

// RelationshipsKey is the cache key of one start node.
func RelationshipsKey(nodeID string) string {
	return query.Key(EndpointFetchRelationshipsByNodeID, nodeID)
}
