package dispatch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/cellhook/internal/protocol"
	"github.com/mattjoyce/cellhook/internal/recordstore"
)

// Target names the record a job reads and the field its result lands in.
type Target struct {
	TableID     string
	RecordID    string
	OutputField string
}

// MapImageOptions selects the template and prompt fields of a map image job.
type MapImageOptions struct {
	TemplateField string // default "tpl"
	PromptField   string // default "prompt"
	Timeout       time.Duration
}

// MapImage asks the map image service to render one visual from the
// record's template and prompt.
func (d *Dispatcher) MapImage(ctx context.Context, t Target, opts MapImageOptions) error {
	tplField := orDefault(opts.TemplateField, "tpl")
	promptField := orDefault(opts.PromptField, "prompt")

	return d.Dispatch(ctx, Job{
		Name:        "map_image",
		Endpoint:    d.endpoints.MapImage,
		TableID:     t.TableID,
		RecordID:    t.RecordID,
		OutputField: t.OutputField,
		Inputs: []Input{
			{Field: tplField, Required: true},
			{Field: promptField, Required: true},
		},
		MissingMessage: "Missing template or prompt",
		Build: func(_ context.Context, rec *recordstore.Record) (map[string]any, error) {
			return map[string]any{
				"visuals": []protocol.Visual{{
					Template: rec.String(tplField),
					Prompt:   rec.String(promptField),
				}},
			}, nil
		},
		Timeout: opts.Timeout,
	})
}

// SearchKeywords sends the record's keywords to the keyword search service.
func (d *Dispatcher) SearchKeywords(ctx context.Context, t Target, keywordsField string, timeout time.Duration) error {
	return d.Dispatch(ctx, Job{
		Name:           "keyword_search",
		Endpoint:       d.endpoints.KeywordSearch,
		TableID:        t.TableID,
		RecordID:       t.RecordID,
		OutputField:    t.OutputField,
		Inputs:         []Input{{Field: orDefault(keywordsField, "keywords"), Required: true, Key: "keywords"}},
		MissingMessage: "Missing keywords",
		Timeout:        timeout,
	})
}

// CrawlURL sends the record's URL to the crawl service. The cell must hold an
// absolute http(s) URL.
func (d *Dispatcher) CrawlURL(ctx context.Context, t Target, urlField string, timeout time.Duration) error {
	field := orDefault(urlField, "url")
	return d.Dispatch(ctx, Job{
		Name:           "url_crawl",
		Endpoint:       d.endpoints.URLCrawl,
		TableID:        t.TableID,
		RecordID:       t.RecordID,
		OutputField:    t.OutputField,
		Inputs:         []Input{{Field: field, Required: true}},
		MissingMessage: "Missing URL",
		Build: func(_ context.Context, rec *recordstore.Record) (map[string]any, error) {
			raw := strings.TrimSpace(rec.String(field))
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, missingInput("Invalid URL: "+raw, field)
			}
			return map[string]any{"url": raw}, nil
		},
		Timeout: timeout,
	})
}
