package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/cellhook/internal/recordstore"
)

var prompts = PromptTable{TableID: "prompts"}

func TestGenerate_ResolvesNamedPrompt(t *testing.T) {
	js := newJobServer(t, nil)
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").Return(record("rec1", map[string]recordstore.Value{
		"question": text("Describe Lisbon"),
		"persona":  text("guide"),
	}), nil)
	store.EXPECT().FindRecord(gomock.Any(), "prompts", "name", "guide").
		Return(recordstore.NewRecord("p1", "prompts", map[string]recordstore.Value{"prompt": text("You are a tour guide.")}), nil)

	d := newTestDispatcher(t, store, js.URL)
	err := d.Generate(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "answer"}, GenerateOptions{
		UserField:       "question",
		Model:           "gpt-4o-mini",
		PromptNameField: "persona",
		Prompts:         prompts,
		JSONFormat:      true,
	})
	require.NoError(t, err)

	reqs := js.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, PathGenerate, js.paths[0])
	assert.Equal(t, "gpt-4o-mini", reqs[0]["model"])
	assert.Equal(t, "You are a tour guide.", reqs[0]["system_prompt"])
	assert.Equal(t, "Describe Lisbon", reqs[0]["user_msg"])
	assert.Equal(t, true, reqs[0]["openai_json_format"])
	assert.Equal(t, "answer", reqs[0]["output_column"])
}

func TestGenerate_MissingPromptFailsBeforeHTTP(t *testing.T) {
	js := newJobServer(t, nil)
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
		Return(record("rec1", map[string]recordstore.Value{"user_msg": text("hello")}), nil)
	store.EXPECT().FindRecord(gomock.Any(), "prompts", "name", "ghost").
		Return(nil, fmt.Errorf("find: %w", recordstore.ErrRecordNotFound))

	d := newTestDispatcher(t, store, js.URL)
	err := d.Generate(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "answer"}, GenerateOptions{
		Model:      "m",
		PromptName: "ghost",
		Prompts:    prompts,
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Failed to retrieve system prompt: ghost", verr.Message)
	assert.Empty(t, js.requests())
}

func TestGenerate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cells   map[string]recordstore.Value
		opts    GenerateOptions
		wantMsg string
	}{
		{
			name:    "missing user message",
			cells:   map[string]recordstore.Value{},
			opts:    GenerateOptions{Model: "m"},
			wantMsg: "Missing user message",
		},
		{
			name:    "missing model",
			cells:   map[string]recordstore.Value{"user_msg": text("hi")},
			opts:    GenerateOptions{},
			wantMsg: "Missing model",
		},
		{
			name:    "prompt name without prompt table",
			cells:   map[string]recordstore.Value{"user_msg": text("hi")},
			opts:    GenerateOptions{Model: "m", PromptName: "x"},
			wantMsg: "Failed to retrieve system prompt: x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			js := newJobServer(t, nil)
			store := newMockStore(t)
			store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").Return(record("rec1", tt.cells), nil)

			d := newTestDispatcher(t, store, js.URL)
			err := d.Generate(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "out"}, tt.opts)
			require.True(t, IsValidation(err), "got %v", err)
			assert.EqualError(t, err, tt.wantMsg)
			assert.Empty(t, js.requests())
		})
	}
}

func TestGenerate_ModelFieldOverridesDefault(t *testing.T) {
	js := newJobServer(t, nil)
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").Return(record("rec1", map[string]recordstore.Value{
		"user_msg": text("hi"),
		"model":    text("  claude-haiku "),
	}), nil)

	d := newTestDispatcher(t, store, js.URL)
	err := d.Generate(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "out"}, GenerateOptions{
		Model:        "fallback",
		ModelField:   "model",
		SystemPrompt: "Be brief.",
	})
	require.NoError(t, err)
	require.Len(t, js.requests(), 1)
	assert.Equal(t, "claude-haiku", js.requests()[0]["model"])
	assert.Equal(t, "Be brief.", js.requests()[0]["system_prompt"])
}

func TestGenerate_HTMLToMarkdown(t *testing.T) {
	js := newJobServer(t, nil)
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").Return(record("rec1", map[string]recordstore.Value{
		"user_msg": text("<p>Visit <strong>Porto</strong></p>"),
	}), nil)

	d := newTestDispatcher(t, store, js.URL)
	err := d.Generate(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "out"}, GenerateOptions{
		Model:          "m",
		HTMLToMarkdown: true,
	})
	require.NoError(t, err)
	require.Len(t, js.requests(), 1)
	assert.Equal(t, "Visit **Porto**", js.requests()[0]["user_msg"])
}

func TestTranslate_OneRequestPerLanguage(t *testing.T) {
	js := newJobServer(t, nil)
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
		Return(record("rec1", map[string]recordstore.Value{"content": text("Hello")}), nil).Times(1)

	d := newTestDispatcher(t, store, js.URL)
	err := d.Translate(context.Background(), "tbl1", "rec1", TranslateOptions{
		Languages: []string{"fr", "de", "pt-BR"},
		Model:     "m",
	})
	require.NoError(t, err)

	reqs := js.requests()
	require.Len(t, reqs, 3)
	var outputs []string
	for _, r := range reqs {
		outputs = append(outputs, r["output_column"].(string))
		assert.Equal(t, "Hello", r["user_msg"])
	}
	assert.Equal(t, []string{"content_fr", "content_de", "content_pt-BR"}, outputs)
	assert.Equal(t, "Translate the user's text into French. Reply with the translation only.", reqs[0]["system_prompt"])
	assert.Equal(t, "Translate the user's text into German. Reply with the translation only.", reqs[1]["system_prompt"])
}

func TestTranslate_RejectsBadLanguagesBeforeHTTP(t *testing.T) {
	tests := []struct {
		name      string
		languages []string
		pattern   string
		wantErr   string
	}{
		{name: "duplicate", languages: []string{"fr", "fr"}, wantErr: "Duplicate language: fr and fr both write content_fr"},
		{name: "duplicate after trim", languages: []string{"fr", " fr "}, wantErr: "Duplicate language"},
		{name: "duplicate by case", languages: []string{"de", "DE"}, wantErr: "Duplicate language"},
		{name: "blank", languages: []string{"fr", " "}, wantErr: "Invalid language: empty code"},
		{name: "unparseable", languages: []string{"fr", "not a language"}, wantErr: "Invalid language: not a language"},
		{name: "pattern without lang", languages: []string{"fr", "de"}, pattern: "{field}_translated", wantErr: "Duplicate language"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			js := newJobServer(t, nil)
			d := newTestDispatcher(t, newMockStore(t), js.URL)

			err := d.Translate(context.Background(), "tbl1", "rec1", TranslateOptions{
				Languages:     tt.languages,
				OutputPattern: tt.pattern,
				Model:         "m",
			})
			require.True(t, IsValidation(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, js.requests())
		})
	}
}

func TestTranslate_MissingSourceSkipsHTTP(t *testing.T) {
	js := newJobServer(t, nil)
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").Return(record("rec1", nil), nil)

	d := newTestDispatcher(t, store, js.URL)
	err := d.Translate(context.Background(), "tbl1", "rec1", TranslateOptions{Languages: []string{"fr"}, Model: "m"})
	require.True(t, IsValidation(err))
	assert.EqualError(t, err, "Missing source text")
	assert.Empty(t, js.requests())
}

func TestTranslate_StopOnError(t *testing.T) {
	failing := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	t.Run("stop at first failure", func(t *testing.T) {
		js := newJobServer(t, failing)
		store := newMockStore(t)
		store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
			Return(record("rec1", map[string]recordstore.Value{"content": text("Hello")}), nil)

		d := newTestDispatcher(t, store, js.URL)
		err := d.Translate(context.Background(), "tbl1", "rec1", TranslateOptions{
			Languages:   []string{"fr", "de"},
			Model:       "m",
			StopOnError: true,
		})
		require.True(t, IsRemote(err))
		assert.Contains(t, err.Error(), "translate fr")
		assert.Len(t, js.requests(), 1)
	})

	t.Run("continue and join", func(t *testing.T) {
		js := newJobServer(t, failing)
		store := newMockStore(t)
		store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
			Return(record("rec1", map[string]recordstore.Value{"content": text("Hello")}), nil)

		d := newTestDispatcher(t, store, js.URL)
		err := d.Translate(context.Background(), "tbl1", "rec1", TranslateOptions{
			Languages: []string{"fr", "de"},
			Model:     "m",
		})
		require.True(t, IsRemote(err))
		assert.Contains(t, err.Error(), "translate fr")
		assert.Contains(t, err.Error(), "translate de")
		assert.Len(t, js.requests(), 2)
	})
}

func TestTranslate_NamedPromptPerLanguage(t *testing.T) {
	js := newJobServer(t, nil)
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
		Return(record("rec1", map[string]recordstore.Value{"body": text("Hello")}), nil)
	store.EXPECT().FindRecord(gomock.Any(), "prompts", "name", "translate_es").
		Return(recordstore.NewRecord("p1", "prompts", map[string]recordstore.Value{"prompt": text("Traduce al español.")}), nil)

	d := newTestDispatcher(t, store, js.URL)
	err := d.Translate(context.Background(), "tbl1", "rec1", TranslateOptions{
		SourceField:   "body",
		Languages:     []string{"es"},
		OutputPattern: "{lang}_{field}",
		Model:         "m",
		PromptName:    "translate_{lang}",
		Prompts:       prompts,
	})
	require.NoError(t, err)
	require.Len(t, js.requests(), 1)
	assert.Equal(t, "es_body", js.requests()[0]["output_column"])
	assert.Equal(t, "Traduce al español.", js.requests()[0]["system_prompt"])
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "French", LanguageName("fr"))
	assert.Equal(t, "Japanese", LanguageName("ja"))
	assert.Equal(t, "??", LanguageName("??"))
}

func TestOutputFieldFor(t *testing.T) {
	assert.Equal(t, "content_fr", OutputFieldFor(DefaultOutputPattern, "content", "fr"))
	assert.Equal(t, "title-de", OutputFieldFor("{field}-{lang}", "title", "de"))
}
