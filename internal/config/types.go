package config

import "time"

// Job kinds. Each maps onto one dispatch variant.
const (
	KindMapImage      = "map_image"
	KindGenerate      = "ai_generate"
	KindTranslate     = "translate"
	KindKeywordSearch = "keyword_search"
	KindURLCrawl      = "url_crawl"
	KindPostSync      = "cms_sync"
)

// Config represents the complete cellhook configuration.
type Config struct {
	Service  ServiceConfig        `yaml:"service"`
	Store    StoreConfig          `yaml:"store"`
	Services ServicesConfig       `yaml:"services"`
	API      APIConfig            `yaml:"api,omitempty"`
	Webhooks *WebhooksConfig      `yaml:"webhooks,omitempty"`
	Jobs     map[string]JobConfig `yaml:"jobs"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// StoreConfig locates the record store.
type StoreConfig struct {
	Path string `yaml:"path"`
	// BaseID is sent to job services so they can write back into this store.
	BaseID string `yaml:"base_id"`
}

// ServicesConfig locates the remote job services.
type ServicesConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout applies to jobs that set none. Zero means no deadline.
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Endpoints overrides the URL of individual job kinds.
	Endpoints map[string]string `yaml:"endpoints,omitempty"`
}

// APIConfig defines the write-back API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes. Name labels it in logs.
type APIToken struct {
	Name   string   `yaml:"name,omitempty"`
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// WebhooksConfig defines webhook listener settings.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint binds a signed URL path to a job profile.
type WebhookEndpoint struct {
	Path            string `yaml:"path"`
	Job             string `yaml:"job"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size,omitempty"` // e.g. "64KiB", "1MB"
}

// JobConfig is a named job profile.
type JobConfig struct {
	Kind  string `yaml:"kind"`
	Table string `yaml:"table"`
	// Output is the field the job service writes its result into. Unused by
	// translate (output_pattern) and cms_sync (post_id_<lang>).
	Output  string        `yaml:"output,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Inputs maps a role (tpl, prompt, user, source, url, ...) to a field name.
	Inputs map[string]string `yaml:"inputs,omitempty"`

	// ai_generate and translate
	Model          string         `yaml:"model,omitempty"`
	SystemPrompt   string         `yaml:"system_prompt,omitempty"`
	PromptName     string         `yaml:"prompt_name,omitempty"`
	Prompts        *PromptsConfig `yaml:"prompts,omitempty"`
	JSONFormat     bool           `yaml:"json_format,omitempty"`
	HTMLToMarkdown bool           `yaml:"html_to_markdown,omitempty"`

	// translate
	Languages     []string `yaml:"languages,omitempty"`
	OutputPattern string   `yaml:"output_pattern,omitempty"`
	StopOnError   *bool    `yaml:"stop_on_error,omitempty"`

	// cms_sync
	Lang   string `yaml:"lang,omitempty"`
	Status string `yaml:"status,omitempty"`
}

// PromptsConfig locates the table of named system prompts.
type PromptsConfig struct {
	Table       string `yaml:"table"`
	NameField   string `yaml:"name_field,omitempty"`
	PromptField string `yaml:"prompt_field,omitempty"`
}

// Input returns the field mapped to role, or def.
func (j JobConfig) Input(role, def string) string {
	if f := j.Inputs[role]; f != "" {
		return f
	}
	return def
}

// StopsOnError reports whether a translation aborts at its first failure.
func (j JobConfig) StopsOnError() bool {
	return j.StopOnError == nil || *j.StopOnError
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "cellhook",
			LogLevel: "info",
		},
		Store: StoreConfig{
			Path: "./data/records.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Jobs: make(map[string]JobConfig),
	}
}
