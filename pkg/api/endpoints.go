package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Endpoint names. They double as the first element of query cache keys.
const (
	EndpointFetchConfig                = "fetchConfig"
	EndpointSearchNodes                = "searchNodes"
	EndpointFetchRelationshipsByNodeID = "fetchRelationshipsByNodeId"
)

// Endpoint declares one GET operation against the base URL.
type Endpoint struct {
	Name  string   `json:"name" yaml:"name"`
	Path  string   `json:"path" yaml:"path"`
	Query []string `json:"query" yaml:"query"`
}

// DefaultEndpoints is the built-in endpoint table.
func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{Name: EndpointFetchConfig, Path: "/config"},
		{Name: EndpointSearchNodes, Path: "/nodes/{label}/search", Query: []string{"field", "value"}},
		{Name: EndpointFetchRelationshipsByNodeID, Path: "/relationships/fromStartNodeId/{nodeId}"},
	}
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Params returns the path placeholders of the endpoint followed by its query parameters.
func (e Endpoint) Params() []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(e.Path, -1) {
		out = append(out, m[1])
	}
	return append(out, e.Query...)
}

// Build renders the endpoint path and query for params. When encode is false
// values are interpolated verbatim.
func (e Endpoint) Build(params map[string]string, encode bool) (string, error) {
	var missing []string
	path := placeholderRe.ReplaceAllStringFunc(e.Path, func(m string) string {
		name := m[1 : len(m)-1]
		val, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		if encode {
			return url.PathEscape(val)
		}
		return val
	})
	for _, name := range e.Query {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("endpoint %s: missing params %s", e.Name, strings.Join(missing, ", "))
	}

	if len(e.Query) == 0 {
		return path, nil
	}

	// declaration order, not url.Values' sorted order
	pairs := make([]string, 0, len(e.Query))
	for _, name := range e.Query {
		val := params[name]
		if encode {
			pairs = append(pairs, url.QueryEscape(name)+"="+url.QueryEscape(val))
		} else {
			pairs = append(pairs, name+"="+val)
		}
	}
	return path + "?" + strings.Join(pairs, "&"), nil
}

// Endpoints is an immutable-after-load endpoint table keyed by name.
type Endpoints struct {
	mu  sync.RWMutex
	idx map[string]Endpoint
}

// NewEndpoints builds a table from the defaults overlaid with overrides.
func NewEndpoints(overrides ...Endpoint) (*Endpoints, error) {
	t := &Endpoints{idx: make(map[string]Endpoint)}
	for _, e := range DefaultEndpoints() {
		t.idx[e.Name] = e
	}
	for i, e := range overrides {
		e = sanitizeEndpoint(e)
		if err := validateEndpoint(e); err != nil {
			return nil, fmt.Errorf("endpoint[%d]: %w", i, err)
		}
		t.idx[e.Name] = e
	}
	return t, nil
}

// Lookup returns the endpoint declared under name.
func (t *Endpoints) Lookup(name string) (Endpoint, bool) {
	if t == nil {
		return Endpoint{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.idx[name]
	return e, ok
}

type endpointsFile struct {
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// LoadEndpoints reads endpoint overrides from a YAML/JSON file. An empty path
// yields the default table.
func LoadEndpoints(path string) (*Endpoints, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewEndpoints()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open endpoints file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read endpoints file: %w", err)
	}

	parsed, err := parseEndpointsFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Endpoints) == 0 {
		return nil, errors.New("endpoints file contains no endpoints entries")
	}

	seen := make(map[string]struct{}, len(parsed.Endpoints))
	for _, e := range parsed.Endpoints {
		name := strings.TrimSpace(e.Name)
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate endpoint name %q", name)
		}
		seen[name] = struct{}{}
	}

	return NewEndpoints(parsed.Endpoints...)
}

func parseEndpointsFile(data []byte, ext string) (endpointsFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var f endpointsFile
		if err := d.fn(data, &f); err == nil {
			return f, nil
		}
	}

	return endpointsFile{}, errors.New("endpoints file format not recognized (expected YAML or JSON)")
}

func sanitizeEndpoint(e Endpoint) Endpoint {
	e.Name = strings.TrimSpace(e.Name)
	e.Path = strings.TrimSpace(e.Path)
	if e.Path != "" && !strings.HasPrefix(e.Path, "/") {
		e.Path = "/" + e.Path
	}
	query := make([]string, 0, len(e.Query))
	for _, q := range e.Query {
		if q = strings.TrimSpace(q); q != "" {
			query = append(query, q)
		}
	}
	e.Query = query
	return e
}

func validateEndpoint(e Endpoint) error {
	if e.Name == "" {
		return errors.New("name is required")
	}
	if e.Path == "" {
		return fmt.Errorf("path is required for endpoint %q", e.Name)
	}
	if strings.Contains(e.Path, "?") {
		return fmt.Errorf("path for endpoint %q must not carry a query string; use query", e.Name)
	}
	// built-in operations pass fixed params, so overrides must keep them
	if def, ok := defaultEndpoint(e.Name); ok {
		want := strings.Join(sortedCopy(def.Params()), ",")
		got := strings.Join(sortedCopy(e.Params()), ",")
		if want != got {
			return fmt.Errorf("endpoint %q must declare params [%s], got [%s]", e.Name, want, got)
		}
	}
	return nil
}

func defaultEndpoint(name string) (Endpoint, bool) {
	for _, e := range DefaultEndpoints() {
		if e.Name == name {
			return e, true
		}
	}
	return Endpoint{}, false
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
