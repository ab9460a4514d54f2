package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a pipeline file. .yaml and .yml files are decoded as YAML,
// anything else as JSON. Environment overrides are not applied; see ApplyEnv.
func Load(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	var p Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		p, err = DecodeYAML(data)
	default:
		p, err = DecodeJSON(data)
	}
	if err != nil {
		return Pipeline{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// DecodeJSON decodes a pipeline document.
func DecodeJSON(data []byte) (Pipeline, error) {
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return Pipeline{}, fmt.Errorf("parse config json: %w", err)
	}
	return p, nil
}

// DecodeYAML decodes a pipeline document, rejecting unknown fields.
func DecodeYAML(data []byte) (Pipeline, error) {
	var p Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("parse config yaml: %w", err)
	}
	return p, nil
}

// ApplyEnv overrides pipeline settings from environment variables:
//
//	CIVIC_WORKERS     runtime.workers
//	CIVIC_CACHE_DSN   cache.dsn
//	METRICS_BACKEND   metrics.backend
//	PUSHGATEWAY_URL   metrics.pushgateway_url
//	DD_AGENT_ADDR     metrics.datadog_addr
//
// lookup is usually os.LookupEnv. Unparsable numbers are reported as errors.
func ApplyEnv(p *Pipeline, lookup func(string) (string, bool)) error {
	if v, ok := lookup("CIVIC_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CIVIC_WORKERS: %w", err)
		}
		p.Runtime.Workers = n
	}
	if v, ok := lookup("CIVIC_CACHE_DSN"); ok && v != "" {
		p.Cache.DSN = v
	}
	if v, ok := lookup("METRICS_BACKEND"); ok && v != "" {
		p.Metrics.Backend = v
	}
	if v, ok := lookup("PUSHGATEWAY_URL"); ok && v != "" {
		p.Metrics.PushgatewayURL = v
	}
	if v, ok := lookup("DD_AGENT_ADDR"); ok && v != "" {
		p.Metrics.DatadogAddr = v
	}
	return nil
}

// Dataset returns the dataset called name.
func (p Pipeline) Dataset(name string) (Dataset, bool) {
	for _, ds := range p.Datasets {
		if ds.Name == name {
			return ds, true
		}
	}
	return Dataset{}, false
}
