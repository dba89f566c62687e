package watcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/comptox-ai/comptox-api-client/pkg/api"
	"gopkg.in/yaml.v3"
)

// Target is one query polled by the watcher.
type Target struct {
	ID       string `json:"id" yaml:"id"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Label    string `json:"label" yaml:"label"`
	Field    string `json:"field" yaml:"field"`
	Value    string `json:"value" yaml:"value"`
	NodeID   string `json:"node_id" yaml:"node_id"`
	Enabled  *bool  `json:"enabled" yaml:"enabled"`
}

type targetsFile struct {
	Targets []Target `json:"targets" yaml:"targets"`
}

// EnabledValue returns the enabled flag defaulting to true.
func (t Target) EnabledValue() bool {
	if t.Enabled == nil {
		return true
	}
	return *t.Enabled
}

// LoadTargets reads watch targets from a YAML/JSON file and returns the enabled ones.
func LoadTargets(path string) ([]Target, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("targets file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	parsed, err := parseTargets(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Targets) == 0 {
		return nil, errors.New("targets file contains no targets entries")
	}

	seen := make(map[string]struct{}, len(parsed.Targets))
	out := make([]Target, 0, len(parsed.Targets))
	for i := range parsed.Targets {
		t := sanitizeTarget(parsed.Targets[i])
		if err := validateTarget(t); err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("duplicate target id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.EnabledValue() {
			out = append(out, t)
		}
	}
	return out, nil
}

func parseTargets(data []byte, ext string) (targetsFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		ext string
		fn  func([]byte, any) error
	}{
		{ext: ".yaml", fn: yaml.Unmarshal},
		{ext: ".yml", fn: yaml.Unmarshal},
		{ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var f targetsFile
		if err := d.fn(data, &f); err == nil {
			return f, nil
		}
	}
	return targetsFile{}, errors.New("targets file format not recognized (expected YAML or JSON)")
}

func sanitizeTarget(t Target) Target {
	t.ID = strings.TrimSpace(t.ID)
	t.Endpoint = strings.TrimSpace(t.Endpoint)
	t.Label = strings.TrimSpace(t.Label)
	t.Field = strings.TrimSpace(t.Field)
	t.NodeID = strings.TrimSpace(t.NodeID)
	if t.ID == "" {
		t.ID = t.defaultID()
	}
	return t
}

func (t Target) defaultID() string {
	switch t.Endpoint {
	case api.EndpointFetchConfig:
		return "config"
	case api.EndpointSearchNodes:
		if t.Label == "" {
			return ""
		}
		return strings.Join([]string{t.Label, t.Field, t.Value}, ":")
	case api.EndpointFetchRelationshipsByNodeID:
		if t.NodeID == "" {
			return ""
		}
		return "relationships:" + t.NodeID
	}
	return ""
}

// validateTarget checks that the endpoint is known and its params are set.
// Search values may be empty; the backend decides what that matches.
func validateTarget(t Target) error {
	if t.ID == "" {
		return errors.New("id is required")
	}
	switch t.Endpoint {
	case api.EndpointFetchConfig:
	case api.EndpointSearchNodes:
		if t.Label == "" || t.Field == "" {
			return fmt.Errorf("label and field are required for target %q", t.ID)
		}
	case api.EndpointFetchRelationshipsByNodeID:
		if t.NodeID == "" {
			return fmt.Errorf("node_id is required for target %q", t.ID)
		}
	case "":
		return fmt.Errorf("endpoint is required for target %q", t.ID)
	default:
		return fmt.Errorf("unknown endpoint %q for target %q", t.Endpoint, t.ID)
	}
	return nil
}
