package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassista/sheetwatch/internal/cache"
	"github.com/bassista/sheetwatch/internal/snapshot"
	"github.com/bassista/sheetwatch/internal/trigger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const bookID = "/data/book.xlsx"

// mockNotifier records notifications
type mockNotifier struct {
	mu     sync.Mutex
	ids    []string
	sheets []string
}

func (m *mockNotifier) Notify(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
}

func (m *mockNotifier) NotifySheet(id, sheet string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	m.sheets = append(m.sheets, sheet)
}

// mockProber implements trigger.Prober for testing
type mockProber struct {
	locked bool
	err    error
}

func (m *mockProber) Probe(string) (bool, error) {
	return m.locked, m.err
}

func createTestStore(t *testing.T) *cache.Store {
	t.Helper()
	store := cache.NewStore(10)
	require.NoError(t, store.Register("book", bookID))
	require.NoError(t, store.Commit(bookID, snapshot.Snapshot{"Sheet1": {"A1": "hello"}}, nil))
	require.NoError(t, store.Commit(bookID, snapshot.Snapshot{"Sheet1": {"A1": "触发"}}, []snapshot.ChangeEvent{
		{Kind: snapshot.CellUpdated, Resource: bookID, Sheet: "Sheet1", Cell: "A1", OldValue: "hello", NewValue: "触发"},
		{Kind: snapshot.SheetCreated, Resource: bookID, Sheet: "Sheet2"},
	}))
	return store
}

func setupRouter(rc *ResourceController) *gin.Engine {
	r := gin.New()
	r.GET("/resources", rc.AllResources)
	r.GET("/resources/:name", rc.Resource)
	r.GET("/resources/:name/snapshot", rc.Snapshot)
	r.GET("/resources/:name/events", rc.Events)
	r.GET("/resources/:name/lock", rc.Lock)
	r.POST("/resources/:name/notify", rc.Notify)
	r.POST("/resources/:name/modified", rc.Modified)
	return r
}

func doRequest(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestResourceController_AllResources(t *testing.T) {
	rc := NewResourceController(createTestStore(t), &mockNotifier{}, nil, nil)

	w := doRequest(setupRouter(rc), http.MethodGet, "/resources", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var list []cache.ResourceState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "book", list[0].Name)
	assert.Equal(t, bookID, list[0].Path)
	assert.True(t, list[0].HasBaseline)
	assert.Equal(t, uint64(2), list[0].Events)
	assert.NotEmpty(t, list[0].Fingerprint)
}

func TestResourceController_Resource(t *testing.T) {
	r := setupRouter(NewResourceController(createTestStore(t), &mockNotifier{}, nil, nil))

	w := doRequest(r, http.MethodGet, "/resources/book", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"book"`)

	w = doRequest(r, http.MethodGet, "/resources/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourceController_Snapshot(t *testing.T) {
	r := setupRouter(NewResourceController(createTestStore(t), &mockNotifier{}, nil, nil))

	w := doRequest(r, http.MethodGet, "/resources/book/snapshot", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Name        string            `json:"name"`
		Baseline    bool              `json:"baseline"`
		Fingerprint string            `json:"fingerprint"`
		Sheets      snapshot.Snapshot `json:"sheets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Baseline)
	assert.Equal(t, snapshot.Snapshot{"Sheet1": {"A1": "触发"}}, body.Sheets)
	assert.Equal(t, snapshot.Fingerprint(body.Sheets), body.Fingerprint)

	w = doRequest(r, http.MethodGet, "/resources/missing/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourceController_Events(t *testing.T) {
	r := setupRouter(NewResourceController(createTestStore(t), &mockNotifier{}, nil, nil))

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCount  int
	}{
		{name: "all", path: "/resources/book/events", wantStatus: http.StatusOK, wantCount: 2},
		{name: "limit", path: "/resources/book/events?limit=1", wantStatus: http.StatusOK, wantCount: 1},
		{name: "zero limit is all", path: "/resources/book/events?limit=0", wantStatus: http.StatusOK, wantCount: 2},
		{name: "bad limit", path: "/resources/book/events?limit=abc", wantStatus: http.StatusBadRequest},
		{name: "negative limit", path: "/resources/book/events?limit=-3", wantStatus: http.StatusBadRequest},
		{name: "unknown", path: "/resources/nope/events", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var events []cache.Record
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
			assert.Len(t, events, tt.wantCount)
		})
	}

	w := doRequest(r, http.MethodGet, "/resources/book/events?limit=1", nil)
	var events []cache.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	assert.Equal(t, snapshot.SheetCreated, events[0].Kind, "limit keeps the most recent events")
}

func TestResourceController_Lock(t *testing.T) {
	store := createTestStore(t)

	w := doRequest(setupRouter(NewResourceController(store, &mockNotifier{}, &mockProber{locked: true}, nil)), http.MethodGet, "/resources/book/lock", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"book","locked":true}`, w.Body.String())

	w = doRequest(setupRouter(NewResourceController(store, &mockNotifier{}, &mockProber{err: errors.New("gone")}, nil)), http.MethodGet, "/resources/book/lock", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(setupRouter(NewResourceController(store, &mockNotifier{}, nil, nil)), http.MethodGet, "/resources/book/lock", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestResourceController_Notify(t *testing.T) {
	notifier := &mockNotifier{}
	r := setupRouter(NewResourceController(createTestStore(t), notifier, nil, nil))

	w := doRequest(r, http.MethodPost, "/resources/book/notify", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{bookID}, notifier.ids)

	w = doRequest(r, http.MethodPost, "/resources/nope/notify", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, notifier.ids, 1)
}

func TestResourceController_ModifiedWithoutCallbackTrigger(t *testing.T) {
	r := setupRouter(NewResourceController(createTestStore(t), &mockNotifier{}, nil, nil))

	w := doRequest(r, http.MethodPost, "/resources/book/modified", []byte(`{"sheet":"Sheet1"}`))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourceController_Modified(t *testing.T) {
	notifier := &mockNotifier{}
	callback := trigger.NewCallbackAdapter([]string{bookID})
	require.NoError(t, callback.Start(context.Background(), notifier))
	r := setupRouter(NewResourceController(createTestStore(t), notifier, nil, callback))

	w := doRequest(r, http.MethodPost, "/resources/book/modified", []byte(`{"sheet":"Budget"}`))
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doRequest(r, http.MethodPost, "/resources/book/modified", nil)
	assert.Equal(t, http.StatusAccepted, w.Code, "the body is optional")

	assert.Equal(t, []string{bookID, bookID}, notifier.ids)
	assert.Equal(t, []string{"Budget", ""}, notifier.sheets)

	w = doRequest(r, http.MethodPost, "/resources/book/modified", []byte(`{bad json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/resources/book/modified", []byte(`{"sheet":"`+strings.Repeat("x", 40)+`"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/resources/nope/modified", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, callback.Stop())
	w = doRequest(r, http.MethodPost, "/resources/book/modified", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
