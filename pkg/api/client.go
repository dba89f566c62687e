// Package api is the client facade for the ComptoxAI graph REST backend.
//
// It translates three named read operations into GET requests against one
// base URL and decodes the JSON bodies. Caching, deduplication and state
// tracking live in pkg/query; see Hooks for the cached accessors.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/comptox-ai/comptox-api-client/internal/domain"
	"github.com/comptox-ai/comptox-api-client/internal/metrics"
	"github.com/comptox-ai/comptox-api-client/pkg/httpclient"
)

// DefaultBaseURL is the local backend address used when none is configured.
const DefaultBaseURL = "http://localhost:3000"

// Client issues the backend requests. It holds no mutable state after New.
type Client struct {
	baseURL   string
	http      httpclient.Client
	endpoints *Endpoints
	encode    bool
	timeout   time.Duration
	headers   map[string]string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default resty transport.
func WithHTTPClient(hc httpclient.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithEndpoints replaces the built-in endpoint table.
func WithEndpoints(t *Endpoints) Option {
	return func(c *Client) {
		if t != nil {
			c.endpoints = t
		}
	}
}

// WithTimeout sets a per-request timeout on the default transport. Zero means
// none. It has no effect when WithHTTPClient supplies the transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRawParams disables percent-encoding of interpolated parameters.
func WithRawParams() Option {
	return func(c *Client) { c.encode = false }
}

// WithHeaders adds headers sent on every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k == "" || v == "" {
				continue
			}
			c.headers[k] = v
		}
	}
}

// New builds a client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must include scheme and host", baseURL)
	}

	c := &Client{
		baseURL: baseURL,
		encode:  true,
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewRestyClient(c.timeout)
	}
	if c.endpoints == nil {
		if c.endpoints, err = NewEndpoints(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// ConfigURL returns the request URL of FetchConfig.
func (c *Client) ConfigURL() (string, error) {
	return c.url(EndpointFetchConfig, nil)
}

// SearchNodesURL returns the request URL of SearchNodes.
func (c *Client) SearchNodesURL(label, field, value string) (string, error) {
	return c.url(EndpointSearchNodes, map[string]string{
		"label": label,
		"field": field,
		"value": value,
	})
}

// RelationshipsURL returns the request URL of FetchRelationshipsByNodeID.
func (c *Client) RelationshipsURL(nodeID string) (string, error) {
	return c.url(EndpointFetchRelationshipsByNodeID, map[string]string{"nodeId": nodeID})
}

// FetchConfig issues GET {base}/config.
func (c *Client) FetchConfig(ctx context.Context) (domain.Config, error) {
	body, err := c.FetchConfigRaw(ctx)
	if err != nil {
		return nil, err
	}
	var out domain.Config
	if err := decodeBody(EndpointFetchConfig, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchNodes issues GET {base}/nodes/{label}/search?field={field}&value={value}.
// An empty result set is not an error.
func (c *Client) SearchNodes(ctx context.Context, label, field, value string) ([]domain.Node, error) {
	body, err := c.SearchNodesRaw(ctx, label, field, value)
	if err != nil {
		return nil, err
	}
	var out []domain.Node
	if err := decodeBody(EndpointSearchNodes, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchRelationshipsByNodeID issues GET {base}/relationships/fromStartNodeId/{nodeId}.
func (c *Client) FetchRelationshipsByNodeID(ctx context.Context, nodeID string) ([]domain.Relationship, error) {
	body, err := c.RelationshipsRaw(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	var out []domain.Relationship
	if err := decodeBody(EndpointFetchRelationshipsByNodeID, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchConfigRaw returns the undecoded /config body.
func (c *Client) FetchConfigRaw(ctx context.Context) ([]byte, error) {
	u, err := c.ConfigURL()
	if err != nil {
		return nil, err
	}
	return c.get(ctx, EndpointFetchConfig, u)
}

// SearchNodesRaw returns the undecoded search body.
func (c *Client) SearchNodesRaw(ctx context.Context, label, field, value string) ([]byte, error) {
	u, err := c.SearchNodesURL(label, field, value)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, EndpointSearchNodes, u)
}

// RelationshipsRaw returns the undecoded relationships body.
func (c *Client) RelationshipsRaw(ctx context.Context, nodeID string) ([]byte, error) {
	u, err := c.RelationshipsURL(nodeID)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, EndpointFetchRelationshipsByNodeID, u)
}

func (c *Client) url(name string, params map[string]string) (string, error) {
	ep, ok := c.endpoints.Lookup(name)
	if !ok {
		return "", fmt.Errorf("endpoint %q is not declared", name)
	}
	rel, err := ep.Build(params, c.encode)
	if err != nil {
		return "", err
	}
	return c.baseURL + rel, nil
}

// get performs one GET without retry. Non-2xx responses become *HTTPError.
func (c *Client) get(ctx context.Context, endpoint, u string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Get(ctx, u, c.headers)
	metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(endpoint, "transport").Inc()
		return nil, &TransportError{Endpoint: endpoint, URL: u, Err: err}
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		return nil, &HTTPError{
			Endpoint:   endpoint,
			URL:        u,
			StatusCode: status,
			Body:       responseSnippet(resp.Body()),
		}
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, "2xx").Inc()
	return resp.Body(), nil
}

func decodeBody(endpoint string, body []byte, out any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}
