package runner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/cellhook/internal/config"
	"github.com/mattjoyce/cellhook/internal/dispatch"
	"github.com/mattjoyce/cellhook/internal/dispatch/mocks"
	"github.com/mattjoyce/cellhook/internal/recordstore"
)

type capture struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
}

func newCaptureServer(t *testing.T) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newRunner(t *testing.T, store dispatch.Store, baseURL string, jobs map[string]config.JobConfig) *Runner {
	t.Helper()
	cfg := &config.Config{
		Services: config.ServicesConfig{BaseURL: baseURL},
		Jobs:     jobs,
	}
	d := dispatch.New(store, dispatch.Options{
		BaseID:    "base1",
		Endpoints: Endpoints(cfg.Services),
		Logger:    discardLogger(),
	})
	return New(cfg, d, discardLogger())
}

func TestRun_UnknownJob(t *testing.T) {
	r := newRunner(t, mocks.NewMockStore(gomock.NewController(t)), "http://127.0.0.1:1", nil)
	_, err := r.Run(context.Background(), "nope", "rec1")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRun_MapImageProfile(t *testing.T) {
	srv, c := newCaptureServer(t)
	store := mocks.NewMockStore(gomock.NewController(t))
	store.EXPECT().SelectRecord(gomock.Any(), "tblPlaces", "rec1").Return(
		recordstore.NewRecord("rec1", "tblPlaces", map[string]recordstore.Value{
			"template": recordstore.StringValue("castle"),
			"prompt":   recordstore.StringValue("sunset"),
		}), nil)

	r := newRunner(t, store, srv.URL, map[string]config.JobConfig{
		"place-map": {
			Kind:   config.KindMapImage,
			Table:  "tblPlaces",
			Output: "mapUrl",
			Inputs: map[string]string{"tpl": "template"},
		},
	})

	res, err := r.Run(context.Background(), "place-map", "rec1")
	require.NoError(t, err)
	assert.Equal(t, "place-map", res.Job)
	assert.Equal(t, config.KindMapImage, res.Kind)
	assert.Equal(t, "rec1", res.RecordID)
	_, err = uuid.Parse(res.InvocationID)
	assert.NoError(t, err)

	require.Len(t, c.bodies, 1)
	assert.Equal(t, dispatch.PathMapImage, c.paths[0])
	assert.Equal(t, "mapUrl", c.bodies[0]["output_column"])
}

func TestRun_ValidationErrorStillReportsInvocation(t *testing.T) {
	srv, c := newCaptureServer(t)
	store := mocks.NewMockStore(gomock.NewController(t))
	store.EXPECT().SelectRecord(gomock.Any(), "tblPlaces", "rec1").
		Return(recordstore.NewRecord("rec1", "tblPlaces", nil), nil)

	r := newRunner(t, store, srv.URL, map[string]config.JobConfig{
		"kw": {Kind: config.KindKeywordSearch, Table: "tblPlaces", Output: "results"},
	})

	res, err := r.Run(context.Background(), "kw", "rec1")
	require.True(t, dispatch.IsValidation(err))
	assert.EqualError(t, err, "Missing keywords")
	assert.NotEmpty(t, res.InvocationID)
	assert.Empty(t, c.bodies)
}

func TestRun_TranslateProfile(t *testing.T) {
	srv, c := newCaptureServer(t)
	store := mocks.NewMockStore(gomock.NewController(t))
	store.EXPECT().SelectRecord(gomock.Any(), "tblPosts", "rec9").Return(
		recordstore.NewRecord("rec9", "tblPosts", map[string]recordstore.Value{
			"body": recordstore.StringValue("Good morning"),
		}), nil)

	r := newRunner(t, store, srv.URL, map[string]config.JobConfig{
		"translate-body": {
			Kind:      config.KindTranslate,
			Table:     "tblPosts",
			Model:     "m",
			Languages: []string{"it", "nl"},
			Inputs:    map[string]string{"source": "body"},
		},
	})

	_, err := r.Run(context.Background(), "translate-body", "rec9")
	require.NoError(t, err)
	require.Len(t, c.bodies, 2)
	assert.Equal(t, "body_it", c.bodies[0]["output_column"])
	assert.Equal(t, "body_nl", c.bodies[1]["output_column"])
}

func TestProfiles(t *testing.T) {
	r := newRunner(t, nil, "http://x", map[string]config.JobConfig{
		"b": {Kind: config.KindURLCrawl},
		"a": {Kind: config.KindURLCrawl},
	})
	assert.Equal(t, []string{"a", "b"}, r.Profiles())
}

func TestEndpoints(t *testing.T) {
	ep := Endpoints(config.ServicesConfig{
		BaseURL:   "https://jobs.example.com/",
		Endpoints: map[string]string{config.KindPostSync: "https://cms.example.com/sync"},
	})
	assert.Equal(t, "https://jobs.example.com/new_map_image/run", ep.MapImage)
	assert.Equal(t, "https://jobs.example.com/ai2col/run", ep.Generate)
	assert.Equal(t, "https://cms.example.com/sync", ep.PostSync)
}
