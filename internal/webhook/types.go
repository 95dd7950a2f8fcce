package webhook

import (
	"context"

	"github.com/mattjoyce/cellhook/internal/runner"
)

// JobRunner runs a job profile against one record.
type JobRunner interface {
	Run(ctx context.Context, job, recordID string) (runner.Result, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []EndpointConfig
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	// Path is the URL path for this webhook (e.g., "/hooks/place-map")
	Path string

	// Job is the job profile the hook runs.
	Job string

	// Secret is the HMAC secret for signature verification
	Secret string

	// SignatureHeader is the HTTP header containing the HMAC signature
	SignatureHeader string

	// MaxBodySize is the maximum allowed request body size in bytes (default: 64KiB)
	MaxBodySize int64
}

// TriggerRequest is the body a record-update hook posts.
type TriggerRequest struct {
	RecordID string `json:"record_id"`
}

// TriggerResponse is the JSON response for a dispatched job.
type TriggerResponse struct {
	InvocationID string `json:"invocation_id"`
	Job          string `json:"job"`
	Status       string `json:"status"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error        string `json:"error"`
	InvocationID string `json:"invocation_id,omitempty"`
}

// Default values
const (
	DefaultMaxBodySize     = 64 * 1024
	DefaultSignatureHeader = "X-Signature-256"
)
