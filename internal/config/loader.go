package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted by Discover.
const EnvConfigPath = "CELLHOOK_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validScopes = map[string]bool{"records:ro": true, "records:rw": true, "*": true}

// Discover finds the config file. Priority order: explicit path,
// $CELLHOOK_CONFIG, ./config.yaml, ~/.config/cellhook/config.yaml.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}

	candidates := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "cellhook", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: --config, $%s, %s)", EnvConfigPath, strings.Join(candidates, ", "))
}

// Load reads, interpolates, defaults and validates a config file. A .env file
// next to the config is loaded into the environment first; variables that are
// already set win. When a .checksums manifest sits next to the config, the
// file must match its recorded hash.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}
	dir := filepath.Dir(absPath)

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}
	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func applyConfigDefaults(cfg *Config) {
	cfg.Service.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Service.LogLevel))
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "info"
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = "cellhook"
	}
	if cfg.Jobs == nil {
		cfg.Jobs = make(map[string]JobConfig)
	}
	for name, job := range cfg.Jobs {
		if job.Timeout == 0 {
			job.Timeout = cfg.Services.Timeout
		}
		cfg.Jobs[name] = job
	}
	if cfg.Webhooks != nil {
		for i := range cfg.Webhooks.Endpoints {
			if cfg.Webhooks.Endpoints[i].SignatureHeader == "" {
				cfg.Webhooks.Endpoints[i].SignatureHeader = "X-Signature-256"
			}
		}
	}
}

// JobNames returns the configured job profiles, sorted.
func (c *Config) JobNames() []string {
	names := make([]string, 0, len(c.Jobs))
	for name := range c.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// unresolved reports a field still holding a ${VAR} placeholder.
func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

// validate performs validation on the configuration.
func validate(cfg *Config) error {
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if cfg.Store.BaseID == "" {
		return fmt.Errorf("store.base_id is required")
	}
	if err := unresolved("store.base_id", cfg.Store.BaseID); err != nil {
		return err
	}

	if err := validateServiceURL("services.base_url", cfg.Services.BaseURL); err != nil {
		return err
	}
	if cfg.Services.Timeout < 0 {
		return fmt.Errorf("services.timeout must not be negative")
	}
	for kind, u := range cfg.Services.Endpoints {
		if !knownKind(kind) || kind == KindTranslate {
			return fmt.Errorf("services.endpoints: unknown job kind %q", kind)
		}
		if err := validateServiceURL("services.endpoints."+kind, u); err != nil {
			return err
		}
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the api is enabled")
		}
		if len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth.tokens must be non-empty when the api is enabled")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d]", i)
			if tok.Token == "" {
				return fmt.Errorf("%s.token is required", field)
			}
			if err := unresolved(field+".token", tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("%s.scopes must be non-empty", field)
			}
			for _, s := range tok.Scopes {
				if !validScopes[s] {
					return fmt.Errorf("%s.scopes: unknown scope %q", field, s)
				}
			}
		}
	}

	for _, name := range cfg.JobNames() {
		if err := validateJob(name, cfg.Jobs[name]); err != nil {
			return err
		}
	}

	if cfg.Webhooks != nil {
		if cfg.Webhooks.Listen == "" && len(cfg.Webhooks.Endpoints) > 0 {
			return fmt.Errorf("webhooks.listen is required")
		}
		seen := make(map[string]bool)
		for i, ep := range cfg.Webhooks.Endpoints {
			field := fmt.Sprintf("webhooks.endpoints[%d]", i)
			if !strings.HasPrefix(ep.Path, "/") {
				return fmt.Errorf("%s.path must start with /", field)
			}
			if seen[ep.Path] {
				return fmt.Errorf("%s.path %q is duplicated", field, ep.Path)
			}
			seen[ep.Path] = true
			if _, ok := cfg.Jobs[ep.Job]; !ok {
				return fmt.Errorf("%s.job %q is not a configured job", field, ep.Job)
			}
			if ep.Secret == "" {
				return fmt.Errorf("%s.secret is required", field)
			}
			if err := unresolved(field+".secret", ep.Secret); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateServiceURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	if err := unresolved(field, raw); err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL (got %q)", field, raw)
	}
	return nil
}

func knownKind(kind string) bool {
	switch kind {
	case KindMapImage, KindGenerate, KindTranslate, KindKeywordSearch, KindURLCrawl, KindPostSync:
		return true
	}
	return false
}

func validateJob(name string, job JobConfig) error {
	prefix := fmt.Sprintf("job %q", name)
	if !knownKind(job.Kind) {
		return fmt.Errorf("%s: unknown kind %q", prefix, job.Kind)
	}
	if job.Table == "" {
		return fmt.Errorf("%s: table is required", prefix)
	}
	if job.Timeout < 0 {
		return fmt.Errorf("%s: timeout must not be negative", prefix)
	}

	switch job.Kind {
	case KindTranslate:
		if len(job.Languages) == 0 {
			return fmt.Errorf("%s: languages must be non-empty", prefix)
		}
		if err := validateLanguages(job.Languages); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		if job.Model == "" {
			return fmt.Errorf("%s: model is required", prefix)
		}
		if job.PromptName != "" && (job.Prompts == nil || job.Prompts.Table == "") {
			return fmt.Errorf("%s: prompts.table is required with prompt_name", prefix)
		}
	case KindPostSync:
		if job.Lang == "" {
			return fmt.Errorf("%s: lang is required", prefix)
		}
	default:
		if job.Output == "" {
			return fmt.Errorf("%s: output is required", prefix)
		}
	}

	if job.Kind == KindGenerate {
		if job.Model == "" && job.Inputs["model"] == "" {
			return fmt.Errorf("%s: model or inputs.model is required", prefix)
		}
		named := job.PromptName != "" || job.Inputs["prompt_name"] != ""
		if named && (job.Prompts == nil || job.Prompts.Table == "") {
			return fmt.Errorf("%s: prompts.table is required with a prompt name", prefix)
		}
	}
	return nil
}

// validateLanguages requires distinct, non-blank BCP-47 codes.
func validateLanguages(langs []string) error {
	seen := make(map[string]bool, len(langs))
	for i, raw := range langs {
		code := strings.TrimSpace(raw)
		if code == "" {
			return fmt.Errorf("languages[%d] is empty", i)
		}
		if _, err := language.Parse(code); err != nil {
			return fmt.Errorf("languages[%d]: %q is not a BCP-47 language code", i, code)
		}
		key := strings.ToLower(code)
		if seen[key] {
			return fmt.Errorf("languages[%d]: %q is listed twice", i, code)
		}
		seen[key] = true
	}
	return nil
}
