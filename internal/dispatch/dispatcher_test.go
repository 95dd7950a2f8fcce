package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/cellhook/internal/recordstore"
)

func TestMapImage_SendsEnvelopeAndVisuals(t *testing.T) {
	js := newJobServer(t, nil)
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
		Return(record("rec1", map[string]recordstore.Value{"tpl": text("castle"), "prompt": text("sunset")}), nil)

	d := newTestDispatcher(t, store, js.URL)
	err := d.MapImage(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "mapUrl"}, MapImageOptions{})
	require.NoError(t, err)

	reqs := js.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, PathMapImage, js.paths[0])
	assert.Equal(t, map[string]any{
		"base_id":       "base1",
		"table_id":      "tbl1",
		"record_id":     "rec1",
		"output_column": "mapUrl",
		"visuals":       []any{map[string]any{"tpl": "castle", "prompt": "sunset"}},
	}, reqs[0])
}

func TestMapImage_MissingInputSkipsHTTP(t *testing.T) {
	tests := []struct {
		name  string
		cells map[string]recordstore.Value
	}{
		{"empty template", map[string]recordstore.Value{"tpl": text(""), "prompt": text("sunset")}},
		{"whitespace prompt", map[string]recordstore.Value{"tpl": text("castle"), "prompt": text("   ")}},
		{"both null", map[string]recordstore.Value{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			js := newJobServer(t, nil)
			store := newMockStore(t)
			store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").Return(record("rec1", tt.cells), nil)

			d := newTestDispatcher(t, store, js.URL)
			err := d.MapImage(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "mapUrl"}, MapImageOptions{})

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "Missing template or prompt", verr.Message)
			assert.Empty(t, js.requests())
		})
	}
}

func TestDispatch_RecordLookupFailure(t *testing.T) {
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "nope").
		Return(nil, fmt.Errorf("select: %w", recordstore.ErrRecordNotFound))

	d := newTestDispatcher(t, store, "http://127.0.0.1:1")
	err := d.SearchKeywords(context.Background(), Target{TableID: "tbl1", RecordID: "nope", OutputField: "out"}, "", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, recordstore.ErrRecordNotFound)
	assert.False(t, IsValidation(err))
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	js := newJobServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
		Return(record("rec1", map[string]recordstore.Value{"tpl": text("castle"), "prompt": text("sunset")}), nil)

	d := newTestDispatcher(t, store, js.URL)
	start := time.Now()
	err := d.MapImage(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "mapUrl"},
		MapImageOptions{Timeout: 50 * time.Millisecond})

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 50*time.Millisecond, terr.After)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDispatch_FastResponseWithinTimeout(t *testing.T) {
	js := newJobServer(t, nil)
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
		Return(record("rec1", map[string]recordstore.Value{"keywords": text("castles, lakes")}), nil)

	d := newTestDispatcher(t, store, js.URL)
	err := d.SearchKeywords(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "results"}, "", 5*time.Second)
	require.NoError(t, err)

	reqs := js.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "castles, lakes", reqs[0]["keywords"])
	assert.Equal(t, "results", reqs[0]["output_column"])
}

func TestDispatch_CallerCancellationIsNotTimeout(t *testing.T) {
	js := newJobServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
		Return(record("rec1", map[string]recordstore.Value{"keywords": text("k")}), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := newTestDispatcher(t, store, js.URL)
	err := d.SearchKeywords(ctx, Target{TableID: "tbl1", RecordID: "rec1", OutputField: "results"}, "", time.Minute)
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDispatch_RemoteError(t *testing.T) {
	js := newJobServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	})
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
		Return(record("rec1", map[string]recordstore.Value{"keywords": text("k")}), nil)

	d := newTestDispatcher(t, store, js.URL)
	err := d.SearchKeywords(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "results"}, "", 0)

	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusInternalServerError, rerr.StatusCode)
	assert.Equal(t, "upstream exploded", rerr.Body)
	assert.Equal(t, js.URL+PathKeywordSearch, rerr.Endpoint)
}

func TestCrawlURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "valid", url: "https://example.com/page"},
		{name: "no scheme", url: "example.com", wantErr: "Invalid URL: example.com"},
		{name: "ftp", url: "ftp://example.com", wantErr: "Invalid URL: ftp://example.com"},
		{name: "empty", url: "", wantErr: "Missing URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			js := newJobServer(t, nil)
			store := newMockStore(t)
			store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").
				Return(record("rec1", map[string]recordstore.Value{"url": text(tt.url)}), nil)

			d := newTestDispatcher(t, store, js.URL)
			err := d.CrawlURL(context.Background(), Target{TableID: "tbl1", RecordID: "rec1", OutputField: "body"}, "", 0)
			if tt.wantErr != "" {
				require.True(t, IsValidation(err))
				assert.EqualError(t, err, tt.wantErr)
				assert.Empty(t, js.requests())
				return
			}
			require.NoError(t, err)
			require.Len(t, js.requests(), 1)
			assert.Equal(t, tt.url, js.requests()[0]["url"])
		})
	}
}

func TestDispatch_ParamCollisionRejected(t *testing.T) {
	store := newMockStore(t)
	store.EXPECT().SelectRecord(gomock.Any(), "tbl1", "rec1").Return(record("rec1", nil), nil)

	d := newTestDispatcher(t, store, "http://127.0.0.1:1")
	err := d.Dispatch(context.Background(), Job{
		Name:        "custom",
		Endpoint:    "http://127.0.0.1:1/run",
		TableID:     "tbl1",
		RecordID:    "rec1",
		OutputField: "out",
		Params:      map[string]any{"record_id": "other"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collides with envelope key")
}
