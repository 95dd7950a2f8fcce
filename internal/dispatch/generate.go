package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/mattjoyce/cellhook/internal/recordstore"
)

// DefaultTranslatePrompt is the system prompt of a translation when no named
// prompt is configured. %s is the English name of the target language.
const DefaultTranslatePrompt = "Translate the user's text into %s. Reply with the translation only."

// DefaultOutputPattern names the output field of each translation.
const DefaultOutputPattern = "{field}_{lang}"

var htmlTag = regexp.MustCompile(`<[a-zA-Z][^>]*>`)

// PromptTable locates named system prompts.
type PromptTable struct {
	TableID     string
	NameField   string // default "name"
	PromptField string // default "prompt"
}

// GenerateOptions configures an AI text generation job.
type GenerateOptions struct {
	// UserField holds the user message. Required.
	UserField string
	// ModelField optionally overrides Model per record.
	ModelField string
	Model      string

	// PromptNameField optionally names a prompt per record; PromptName is the
	// fallback. A name is resolved through Prompts. Without a name,
	// SystemPrompt is sent as-is.
	PromptNameField string
	PromptName      string
	SystemPrompt    string
	Prompts         PromptTable

	// JSONFormat asks the service for a strict JSON response.
	JSONFormat bool
	// HTMLToMarkdown converts an HTML user message to Markdown first.
	HTMLToMarkdown bool

	Timeout time.Duration
}

// Generate asks the AI service to write a completion into t.OutputField.
func (d *Dispatcher) Generate(ctx context.Context, t Target, opts GenerateOptions) error {
	userField := orDefault(opts.UserField, "user_msg")

	return d.Dispatch(ctx, Job{
		Name:           "ai_generate",
		Endpoint:       d.endpoints.Generate,
		TableID:        t.TableID,
		RecordID:       t.RecordID,
		OutputField:    t.OutputField,
		Inputs:         []Input{{Field: userField, Required: true}},
		MissingMessage: "Missing user message",
		Build: func(ctx context.Context, rec *recordstore.Record) (map[string]any, error) {
			model := opts.Model
			if opts.ModelField != "" && !rec.Value(opts.ModelField).IsEmpty() {
				model = strings.TrimSpace(rec.String(opts.ModelField))
			}
			if model == "" {
				return nil, missingInput("Missing model", opts.ModelField)
			}

			system := opts.SystemPrompt
			name := opts.PromptName
			if opts.PromptNameField != "" && !rec.Value(opts.PromptNameField).IsEmpty() {
				name = strings.TrimSpace(rec.String(opts.PromptNameField))
			}
			if name != "" {
				var err error
				if system, err = d.systemPrompt(ctx, opts.Prompts, name); err != nil {
					return nil, err
				}
			}

			return map[string]any{
				"model":              model,
				"system_prompt":      system,
				"user_msg":           d.userMessage(rec.String(userField), opts.HTMLToMarkdown),
				"openai_json_format": opts.JSONFormat,
			}, nil
		},
		Timeout: opts.Timeout,
	})
}

// TranslateOptions configures a multi-language translation.
type TranslateOptions struct {
	SourceField string
	// Languages are BCP-47 codes, one request each, in order.
	Languages []string
	// OutputPattern names each output field; {field} and {lang} are replaced.
	OutputPattern string

	Model string
	// PromptName, when set, is resolved per language with {lang} replaced.
	PromptName string
	Prompts    PromptTable

	JSONFormat     bool
	HTMLToMarkdown bool

	// StopOnError aborts the remaining languages at the first failure.
	// Otherwise every language is attempted and failures are joined.
	StopOnError bool

	Timeout time.Duration
}

// Translate issues one AI request per target language, sequentially, each
// awaited before the next and each writing a distinct output field.
func (d *Dispatcher) Translate(ctx context.Context, tableID, recordID string, opts TranslateOptions) error {
	if len(opts.Languages) == 0 {
		return fmt.Errorf("translate: no target languages")
	}
	source := orDefault(opts.SourceField, "content")
	pattern := orDefault(opts.OutputPattern, DefaultOutputPattern)
	if opts.Model == "" {
		return missingInput("Missing model")
	}
	langs, err := targetLanguages(opts.Languages, pattern, source)
	if err != nil {
		return err
	}

	rec, err := d.store.SelectRecord(ctx, tableID, recordID)
	if err != nil {
		return fmt.Errorf("resolve record %s: %w", recordID, err)
	}
	if rec.Value(source).IsEmpty() {
		return missingInput("Missing source text", source)
	}
	userMsg := d.userMessage(rec.String(source), opts.HTMLToMarkdown)

	var errs []error
	for _, lang := range langs {
		job := Job{
			Name:        "translate_" + lang,
			Endpoint:    d.endpoints.Generate,
			TableID:     tableID,
			RecordID:    recordID,
			OutputField: OutputFieldFor(pattern, source, lang),
			Inputs:      []Input{{Field: source, Required: true}},
			Build: func(ctx context.Context, _ *recordstore.Record) (map[string]any, error) {
				system := fmt.Sprintf(DefaultTranslatePrompt, LanguageName(lang))
				if opts.PromptName != "" {
					var err error
					name := strings.ReplaceAll(opts.PromptName, "{lang}", lang)
					if system, err = d.systemPrompt(ctx, opts.Prompts, name); err != nil {
						return nil, err
					}
				}
				return map[string]any{
					"model":              opts.Model,
					"system_prompt":      system,
					"user_msg":           userMsg,
					"openai_json_format": opts.JSONFormat,
				}, nil
			},
			Timeout: opts.Timeout,
		}

		if err := d.dispatchRecord(ctx, job, rec); err != nil {
			err = fmt.Errorf("translate %s: %w", lang, err)
			if opts.StopOnError {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// targetLanguages trims the language codes and checks that each one parses
// as BCP-47 and maps onto its own output field.
func targetLanguages(codes []string, pattern, source string) ([]string, error) {
	langs := make([]string, 0, len(codes))
	seen := make(map[string]string, len(codes))
	for _, code := range codes {
		lang := strings.TrimSpace(code)
		if lang == "" {
			return nil, missingInput("Invalid language: empty code")
		}
		if _, err := language.Parse(lang); err != nil {
			return nil, missingInput("Invalid language: " + lang)
		}
		field := OutputFieldFor(pattern, source, lang)
		if prev, dup := seen[strings.ToLower(field)]; dup {
			return nil, missingInput(fmt.Sprintf("Duplicate language: %s and %s both write %s", prev, lang, field))
		}
		seen[strings.ToLower(field)] = lang
		langs = append(langs, lang)
	}
	return langs, nil
}

// OutputFieldFor expands an output pattern for one language.
func OutputFieldFor(pattern, field, lang string) string {
	return strings.NewReplacer("{field}", field, "{lang}", lang).Replace(pattern)
}

// LanguageName returns the English display name of a BCP-47 code, or the
// code itself when it does not parse.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// systemPrompt looks up a named prompt. A missing table, name or prompt text
// is a validation failure.
func (d *Dispatcher) systemPrompt(ctx context.Context, src PromptTable, name string) (string, error) {
	notFound := missingInput("Failed to retrieve system prompt: "+name, orDefault(src.NameField, "name"))
	if src.TableID == "" {
		return "", notFound
	}
	nameField := orDefault(src.NameField, "name")
	promptField := orDefault(src.PromptField, "prompt")

	rec, err := d.store.FindRecord(ctx, src.TableID, nameField, name)
	if errors.Is(err, recordstore.ErrRecordNotFound) {
		return "", notFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup system prompt %q: %w", name, err)
	}
	if rec.Value(promptField).IsEmpty() {
		return "", notFound
	}
	return rec.String(promptField), nil
}

// userMessage optionally turns an HTML rich-text cell into Markdown. Plain
// text and failed conversions pass through unchanged.
func (d *Dispatcher) userMessage(text string, toMarkdown bool) string {
	if !toMarkdown || !htmlTag.MatchString(text) {
		return text
	}
	md, err := d.markdown.ConvertString(text)
	if err != nil || strings.TrimSpace(md) == "" {
		d.logger.Debug("html to markdown conversion skipped", "error", err)
		return text
	}
	return strings.TrimSpace(md)
}
