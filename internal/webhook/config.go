package webhook

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/mattjoyce/cellhook/internal/config"
)

// FromGlobalConfig converts config.WebhooksConfig to webhook.Config, parsing
// max body sizes.
func FromGlobalConfig(wc *config.WebhooksConfig) (Config, error) {
	if wc == nil {
		return Config{}, fmt.Errorf("webhooks config is nil")
	}

	cfg := Config{
		Listen:    wc.Listen,
		Endpoints: make([]EndpointConfig, len(wc.Endpoints)),
	}
	for i, ep := range wc.Endpoints {
		if ep.Secret == "" {
			return Config{}, fmt.Errorf("webhook endpoint %q: no secret configured", ep.Path)
		}
		maxBodySize, err := parseMaxBodySize(ep.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook endpoint %q: invalid max_body_size %q: %w", ep.Path, ep.MaxBodySize, err)
		}
		cfg.Endpoints[i] = EndpointConfig{
			Path:            ep.Path,
			Job:             ep.Job,
			Secret:          ep.Secret,
			SignatureHeader: ep.SignatureHeader,
			MaxBodySize:     maxBodySize,
		}
	}
	return cfg, nil
}

// parseMaxBodySize parses sizes like "64KiB", "1MB" or "2048" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}
	n, err := humanize.ParseBytes(size)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	if n > 1<<40 {
		return 0, fmt.Errorf("size too large")
	}
	return int64(n), nil
}
