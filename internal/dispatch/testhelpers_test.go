package dispatch

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/cellhook/internal/dispatch/mocks"
	"github.com/mattjoyce/cellhook/internal/log"
	"github.com/mattjoyce/cellhook/internal/recordstore"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

// jobServer records every request body it receives.
type jobServer struct {
	*httptest.Server

	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
}

func newJobServer(t *testing.T, handler http.HandlerFunc) *jobServer {
	t.Helper()
	js := &jobServer{}
	js.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))

		js.mu.Lock()
		js.paths = append(js.paths, r.URL.Path)
		js.bodies = append(js.bodies, body)
		js.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(js.Close)
	return js
}

func (js *jobServer) requests() []map[string]any {
	js.mu.Lock()
	defer js.mu.Unlock()
	return append([]map[string]any(nil), js.bodies...)
}

func newTestDispatcher(t *testing.T, store Store, baseURL string) *Dispatcher {
	t.Helper()
	return New(store, Options{
		BaseID:    "base1",
		Endpoints: DefaultEndpoints(baseURL),
	})
}

func newMockStore(t *testing.T) *mocks.MockStore {
	t.Helper()
	ctrl := gomock.NewController(t)
	return mocks.NewMockStore(ctrl)
}

func record(id string, cells map[string]recordstore.Value) *recordstore.Record {
	return recordstore.NewRecord(id, "tbl1", cells)
}

func text(s string) recordstore.Value { return recordstore.StringValue(s) }
