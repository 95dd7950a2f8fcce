// Package runner maps named job profiles onto dispatch variants and runs one
// invocation per call.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/cellhook/internal/config"
	"github.com/mattjoyce/cellhook/internal/dispatch"
)

// ErrUnknownJob is returned for a profile name that is not configured.
var ErrUnknownJob = errors.New("unknown job")

// Result describes a completed invocation.
type Result struct {
	InvocationID string `json:"invocation_id"`
	Job          string `json:"job"`
	Kind         string `json:"kind"`
	RecordID     string `json:"record_id"`
}

// Runner runs configured job profiles.
type Runner struct {
	jobs       map[string]config.JobConfig
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// New creates a Runner over the job profiles in cfg.
func New(cfg *config.Config, d *dispatch.Dispatcher, logger *slog.Logger) *Runner {
	jobs := make(map[string]config.JobConfig, len(cfg.Jobs))
	for name, job := range cfg.Jobs {
		jobs[name] = job
	}
	return &Runner{jobs: jobs, dispatcher: d, logger: logger}
}

// Profiles lists the configured job names, sorted.
func (r *Runner) Profiles() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run invokes the named job profile against one record.
func (r *Runner) Run(ctx context.Context, job, recordID string) (Result, error) {
	cfg, ok := r.jobs[job]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
	res := Result{
		InvocationID: uuid.NewString(),
		Job:          job,
		Kind:         cfg.Kind,
		RecordID:     recordID,
	}
	logger := r.logger.With(
		"invocation_id", res.InvocationID,
		"job", job,
		"kind", cfg.Kind,
		"record_id", recordID,
	)

	logger.Info("invocation started")
	start := time.Now()
	err := r.invoke(ctx, cfg, recordID)
	elapsed := time.Since(start).Milliseconds()
	switch {
	case err == nil:
		logger.Info("invocation succeeded", "duration_ms", elapsed)
	case dispatch.IsValidation(err):
		logger.Info("invocation rejected", "reason", err.Error(), "duration_ms", elapsed)
	default:
		logger.Error("invocation failed", "error", err, "duration_ms", elapsed)
	}
	return res, err
}

func (r *Runner) invoke(ctx context.Context, cfg config.JobConfig, recordID string) error {
	d := r.dispatcher
	target := dispatch.Target{TableID: cfg.Table, RecordID: recordID, OutputField: cfg.Output}

	switch cfg.Kind {
	case config.KindMapImage:
		return d.MapImage(ctx, target, dispatch.MapImageOptions{
			TemplateField: cfg.Input("tpl", "tpl"),
			PromptField:   cfg.Input("prompt", "prompt"),
			Timeout:       cfg.Timeout,
		})
	case config.KindGenerate:
		return d.Generate(ctx, target, dispatch.GenerateOptions{
			UserField:       cfg.Input("user", "user_msg"),
			ModelField:      cfg.Input("model", ""),
			Model:           cfg.Model,
			PromptNameField: cfg.Input("prompt_name", ""),
			PromptName:      cfg.PromptName,
			SystemPrompt:    cfg.SystemPrompt,
			Prompts:         promptTable(cfg.Prompts),
			JSONFormat:      cfg.JSONFormat,
			HTMLToMarkdown:  cfg.HTMLToMarkdown,
			Timeout:         cfg.Timeout,
		})
	case config.KindTranslate:
		return d.Translate(ctx, cfg.Table, recordID, dispatch.TranslateOptions{
			SourceField:    cfg.Input("source", "content"),
			Languages:      cfg.Languages,
			OutputPattern:  cfg.OutputPattern,
			Model:          cfg.Model,
			PromptName:     cfg.PromptName,
			Prompts:        promptTable(cfg.Prompts),
			JSONFormat:     cfg.JSONFormat,
			HTMLToMarkdown: cfg.HTMLToMarkdown,
			StopOnError:    cfg.StopsOnError(),
			Timeout:        cfg.Timeout,
		})
	case config.KindKeywordSearch:
		return d.SearchKeywords(ctx, target, cfg.Input("keywords", "keywords"), cfg.Timeout)
	case config.KindURLCrawl:
		return d.CrawlURL(ctx, target, cfg.Input("url", "url"), cfg.Timeout)
	case config.KindPostSync:
		return d.SyncPost(ctx, cfg.Table, recordID, dispatch.SyncOptions{
			Lang:         cfg.Lang,
			TitleField:   cfg.Input("title", "title"),
			ContentField: cfg.Input("content", "content"),
			ExcerptField: cfg.Input("excerpt", ""),
			Status:       cfg.Status,
			Timeout:      cfg.Timeout,
		})
	default:
		return fmt.Errorf("job kind %q is not supported", cfg.Kind)
	}
}

func promptTable(p *config.PromptsConfig) dispatch.PromptTable {
	if p == nil {
		return dispatch.PromptTable{}
	}
	return dispatch.PromptTable{TableID: p.Table, NameField: p.NameField, PromptField: p.PromptField}
}

// Endpoints resolves the job service URLs: the fixed paths under
// services.base_url, with per-kind overrides. translate shares the
// ai_generate endpoint.
func Endpoints(cfg config.ServicesConfig) dispatch.Endpoints {
	ep := dispatch.DefaultEndpoints(cfg.BaseURL)
	overrides := map[string]*string{
		config.KindMapImage:      &ep.MapImage,
		config.KindGenerate:      &ep.Generate,
		config.KindKeywordSearch: &ep.KeywordSearch,
		config.KindURLCrawl:      &ep.URLCrawl,
		config.KindPostSync:      &ep.PostSync,
	}
	for kind, u := range cfg.Endpoints {
		if dst, ok := overrides[kind]; ok && u != "" {
			*dst = u
		}
	}
	return ep
}
