package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/mattjoyce/cellhook/internal/log"
	"github.com/mattjoyce/cellhook/internal/protocol"
	"github.com/mattjoyce/cellhook/internal/recordstore"
)

// maxErrorBody caps how much of a failed response body is kept on a RemoteError.
const maxErrorBody = 4 * 1024

// errDeadline is the cancellation cause of a request whose job timeout expired.
var errDeadline = errors.New("job timeout elapsed")

// Options configures a Dispatcher.
type Options struct {
	// BaseID identifies the record store to the job services.
	BaseID    string
	Endpoints Endpoints
	// Client defaults to a client without its own timeout; deadlines come
	// from Job.Timeout and the caller's context.
	Client *http.Client
	Logger *slog.Logger
}

// Dispatcher reads record cells and posts job requests.
type Dispatcher struct {
	store     Store
	baseID    string
	endpoints Endpoints
	client    *http.Client
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
	markdown  *htmltomd.Converter
}

// New creates a Dispatcher reading from store.
func New(store Store, opts Options) *Dispatcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("dispatch")
	}
	return &Dispatcher{
		store:     store,
		baseID:    opts.BaseID,
		endpoints: opts.Endpoints,
		client:    client,
		logger:    logger,
		sanitizer: bluemonday.UGCPolicy(),
		markdown: htmltomd.NewConverter(
			htmltomd.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Input declares a record field a job reads.
type Input struct {
	Field    string
	Required bool
	// Key, when set, copies the cell value verbatim into the params under Key.
	Key string
}

// Job is one request to a job service.
type Job struct {
	// Name labels the job in logs.
	Name     string
	Endpoint string

	TableID     string
	RecordID    string
	OutputField string
	// OutputKey overrides the payload key of OutputField (default output_column).
	OutputKey string

	Inputs []Input
	// MissingMessage replaces the default validation message.
	MissingMessage string

	// Params are sent as-is.
	Params map[string]any
	// Build derives further params from the fetched record. It runs after
	// input validation and before any HTTP call.
	Build func(ctx context.Context, rec *recordstore.Record) (map[string]any, error)

	// Timeout bounds the HTTP call when positive.
	Timeout time.Duration
}

// Dispatch resolves the job's record and sends the job request.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	rec, err := d.store.SelectRecord(ctx, job.TableID, job.RecordID)
	if err != nil {
		return fmt.Errorf("resolve record %s: %w", job.RecordID, err)
	}
	return d.dispatchRecord(ctx, job, rec)
}

// dispatchRecord runs the job against an already fetched record.
func (d *Dispatcher) dispatchRecord(ctx context.Context, job Job, rec *recordstore.Record) error {
	logger := d.logger.With("job", job.Name, "table_id", job.TableID, "record_id", job.RecordID)

	if missing := missingFields(rec, job.Inputs); len(missing) > 0 {
		msg := job.MissingMessage
		if msg == "" {
			msg = "Missing required field(s): " + strings.Join(missing, ", ")
		}
		logger.Info("job inputs missing", "fields", missing)
		return missingInput(msg, missing...)
	}

	params := make(map[string]any, len(job.Params)+len(job.Inputs))
	for k, v := range job.Params {
		params[k] = v
	}
	for _, in := range job.Inputs {
		if in.Key != "" {
			params[in.Key] = rec.Value(in.Field).Any()
		}
	}
	if job.Build != nil {
		extra, err := job.Build(ctx, rec)
		if err != nil {
			return err
		}
		for k, v := range extra {
			params[k] = v
		}
	}

	body, err := protocol.Marshal(&protocol.Request{
		Envelope: protocol.Envelope{
			BaseID:      d.baseID,
			TableID:     job.TableID,
			RecordID:    job.RecordID,
			OutputKey:   job.OutputKey,
			OutputField: job.OutputField,
		},
		Params: params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", job.Name, err)
	}

	logger.Debug("posting job request", "endpoint", job.Endpoint, "bytes", len(body), "timeout", job.Timeout)
	start := time.Now()
	if err := d.post(ctx, job.Endpoint, body, job.Timeout); err != nil {
		logger.Warn("job request failed", "endpoint", job.Endpoint, "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return err
	}
	logger.Info("job request accepted", "endpoint", job.Endpoint, "output_field", job.OutputField,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// post sends body to endpoint. With a positive timeout the request is bound
// to a derived context; expiry cancels the in-flight request and surfaces as
// *TimeoutError. Cancellation of ctx itself is returned unchanged.
func (d *Dispatcher) post(ctx context.Context, endpoint string, body []byte, timeout time.Duration) error {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeoutCause(ctx, timeout, errDeadline)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if timeout > 0 && errors.Is(context.Cause(reqCtx), errDeadline) {
			return &TimeoutError{Endpoint: endpoint, After: timeout}
		}
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	// Drain so the connection can be reused; the body itself is not consumed.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

func missingFields(rec *recordstore.Record, inputs []Input) []string {
	var missing []string
	for _, in := range inputs {
		if in.Required && rec.Value(in.Field).IsEmpty() {
			missing = append(missing, in.Field)
		}
	}
	return missing
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
