package dispatch

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mattjoyce/cellhook/internal/protocol"
	"github.com/mattjoyce/cellhook/internal/recordstore"
)

// SyncOptions configures a CMS post sync.
type SyncOptions struct {
	// Lang is the post language; its post id lives in post_id_<lang>.
	Lang         string
	TitleField   string // default "title"
	ContentField string // default "content"
	ExcerptField string // optional
	Status       string // default "publish"
	Timeout      time.Duration
}

// PostIDColumn names the number field holding the CMS post id for lang.
func PostIDColumn(lang string) string {
	return "post_id_" + lang
}

// SyncPost publishes the record as a CMS post. The post id field for the
// language is created on the table first when missing, then the record is
// read so the field is visible. The sync service writes the post id back.
func (d *Dispatcher) SyncPost(ctx context.Context, tableID, recordID string, opts SyncOptions) error {
	lang := strings.ToLower(strings.TrimSpace(opts.Lang))
	if lang == "" {
		return fmt.Errorf("sync post: language is empty")
	}
	column := PostIDColumn(lang)
	titleField := orDefault(opts.TitleField, "title")
	contentField := orDefault(opts.ContentField, "content")
	status := orDefault(opts.Status, "publish")

	if err := d.ensureField(ctx, tableID, column, recordstore.FieldNumber); err != nil {
		return err
	}

	rec, err := d.store.SelectRecord(ctx, tableID, recordID)
	if err != nil {
		return fmt.Errorf("resolve record %s: %w", recordID, err)
	}

	return d.dispatchRecord(ctx, Job{
		Name:        "cms_sync",
		Endpoint:    d.endpoints.PostSync,
		TableID:     tableID,
		RecordID:    recordID,
		OutputKey:   protocol.KeyPostIDColumn,
		OutputField: column,
		Inputs: []Input{
			{Field: titleField, Required: true},
			{Field: contentField, Required: true},
		},
		MissingMessage: "Missing title or content",
		Build: func(_ context.Context, rec *recordstore.Record) (map[string]any, error) {
			post := protocol.Post{
				Title:   strings.TrimSpace(rec.String(titleField)),
				Content: d.sanitizer.Sanitize(rec.String(contentField)),
				Status:  status,
			}
			if opts.ExcerptField != "" {
				post.Excerpt = strings.TrimSpace(rec.String(opts.ExcerptField))
			}
			if id, ok := postID(rec.Value(column)); ok {
				post.ID = id
			}

			var enID any
			if lang != "en" {
				if id, ok := postID(rec.Value(PostIDColumn("en"))); ok {
					enID = id
				}
			}
			return map[string]any{
				"post":       post,
				"post_lang":  lang,
				"post_en_id": enID,
			}, nil
		},
		Timeout: opts.Timeout,
	}, rec)
}

// ensureField creates a field when the table lacks it. Store.CreateField is
// idempotent, so concurrent or repeated calls never duplicate the field.
func (d *Dispatcher) ensureField(ctx context.Context, tableID, name string, typ recordstore.FieldType) error {
	has, err := d.store.HasField(ctx, tableID, name)
	if err != nil {
		return fmt.Errorf("check field %s: %w", name, err)
	}
	if has {
		return nil
	}
	created, err := d.store.CreateField(ctx, tableID, name, typ)
	if err != nil {
		return fmt.Errorf("create field %s: %w", name, err)
	}
	if created {
		d.logger.Info("created field", "table_id", tableID, "field", name, "type", typ)
	}
	return nil
}

// maxPostID is the largest whole number a float64 cell holds exactly.
const maxPostID = 1 << 53

// postID reads a positive whole number cell as a post id.
func postID(v recordstore.Value) (int64, bool) {
	n, ok := v.Number()
	if !ok || n <= 0 || n > maxPostID || n != math.Trunc(n) {
		return 0, false
	}
	return int64(n), true
}
