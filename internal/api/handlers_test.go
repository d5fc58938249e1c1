package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vectorstore-go/internal/config"
	"vectorstore-go/internal/vecdb"
	"vectorstore-go/pkg/managed"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, stores StoreManager) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, config.Default().Server, NewHandler(stores))
	return router
}

func newTestManager(t *testing.T) *vecdb.Manager {
	t.Helper()
	m, err := vecdb.NewManager(vecdb.ManagerConfig{RootDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlers_EndToEnd(t *testing.T) {
	router := newTestRouter(t, newTestManager(t))

	// init a fresh store
	w := doJSON(t, router, http.MethodPost, "/init", managed.InitRequest{Path: "org/docs"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var initResp managed.InitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &initResp))
	assert.Equal(t, managed.StatusCode(http.StatusOK), initResp.StatusCode)
	assert.False(t, initResp.Exists)
	assert.Equal(t, 0, initResp.Length)
	assert.Len(t, initResp.Tensors, 4)

	// add two rows column-wise
	w = doJSON(t, router, http.MethodPost, "/add", `{
		"path": "org/docs",
		"data": {
			"text": ["first", "second"],
			"metadata": [{"page": 1}, {"page": 2}],
			"embedding": [[1.0, 0.0, 0.0], [0.0, 1.0, 0.0]]
		}
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var addResp managed.AddResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &addResp))
	assert.Equal(t, managed.StatusCode(http.StatusCreated), addResp.StatusCode)
	require.NoError(t, addResp.CheckRows(2))
	assert.True(t, addResp.IDs.Present())

	// search with a filter on a metadata entry
	w = doJSON(t, router, http.MethodPost, "/search", `{
		"path": "org/docs",
		"embedding": [0.0, 1.0, 0.0],
		"k": 5,
		"filter": [{"field": "page", "op": "equal", "target": 2}],
		"return_tensors": ["text", "metadata"]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var searchResp managed.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &searchResp))
	assert.Equal(t, 1, searchResp.Length)
	assert.Equal(t, []string{"metadata", "score", "text"}, searchResp.Columns())
	assert.True(t, managed.String("second").Equal(searchResp.Data["text"][0]))
	assert.True(t, managed.Map(map[string]managed.Value{"page": managed.Int(2)}).Equal(searchResp.Data["metadata"][0]))

	// summary reflects the added rows
	w = doJSON(t, router, http.MethodGet, "/summary?path=org/docs", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summaryResp managed.SummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summaryResp))
	assert.Equal(t, 2, summaryResp.Length)
	assert.Contains(t, summaryResp.Summary, "org/docs")

	// init again reuses the store
	w = doJSON(t, router, http.MethodPost, "/init", managed.InitRequest{Path: "org/docs"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &initResp))
	assert.True(t, initResp.Exists)
	assert.Equal(t, 2, initResp.Length)
}

func TestHandlers_Failures(t *testing.T) {
	router := newTestRouter(t, newTestManager(t))

	w := doJSON(t, router, http.MethodPost, "/init", managed.InitRequest{Path: "store"})
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantBody string
	}{
		{
			name:     "init with malformed body",
			method:   http.MethodPost,
			path:     "/init",
			body:     `{"path": `,
			wantCode: http.StatusBadRequest,
			wantBody: `{"status_code":400,"path":"","summary":"","length":0,"tensors":[],"exists":false}`,
		},
		{
			name:     "init escaping the root",
			method:   http.MethodPost,
			path:     "/init",
			body:     managed.InitRequest{Path: "../outside"},
			wantCode: http.StatusBadRequest,
			wantBody: `{"status_code":400,"path":"","summary":"","length":0,"tensors":[],"exists":false}`,
		},
		{
			name:     "summary of a missing store",
			method:   http.MethodGet,
			path:     "/summary?path=missing",
			wantCode: http.StatusNotFound,
			wantBody: `{"status_code":404,"summary":"","length":0,"tensors":[]}`,
		},
		{
			name:     "summary without path",
			method:   http.MethodGet,
			path:     "/summary",
			wantCode: http.StatusBadRequest,
			wantBody: `{"status_code":400,"summary":"","length":0,"tensors":[]}`,
		},
		{
			name:     "search of a missing store",
			method:   http.MethodPost,
			path:     "/search",
			body:     managed.SearchRequest{Path: "missing", Embedding: []float32{1}},
			wantCode: http.StatusNotFound,
			wantBody: `{"status_code":404,"length":0,"data":{}}`,
		},
		{
			name:     "search with an empty embedding",
			method:   http.MethodPost,
			path:     "/search",
			body:     managed.SearchRequest{Path: "store"},
			wantCode: http.StatusBadRequest,
			wantBody: `{"status_code":400,"length":0,"data":{}}`,
		},
		{
			name:     "add with ragged columns",
			method:   http.MethodPost,
			path:     "/add",
			body:     `{"path": "store", "data": {"text": ["a", "b"], "embedding": [[1.0]]}}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"status_code":400}`,
		},
		{
			name:     "add with unknown tensor",
			method:   http.MethodPost,
			path:     "/add",
			body:     `{"path": "store", "data": {"title": ["a"]}}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"status_code":400}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

type failingManager struct{}

var errDiskFull = errors.New("disk full")

func (failingManager) Init(managed.InitRequest) (managed.InitResponse, error) {
	return managed.InitResponse{}, errDiskFull
}

func (failingManager) Summary(string) (managed.SummaryResponse, error) {
	return managed.SummaryResponse{}, errDiskFull
}

func (failingManager) Search(managed.SearchRequest) (managed.SearchResponse, error) {
	return managed.SearchResponse{}, errDiskFull
}

func (failingManager) Add(managed.AddRequest) (managed.AddResponse, error) {
	return managed.AddResponse{}, errDiskFull
}

func (failingManager) OpenStores() int { return 0 }

func TestHandlers_InternalErrors(t *testing.T) {
	router := newTestRouter(t, failingManager{})

	w := doJSON(t, router, http.MethodPost, "/add", managed.AddRequest{Path: "store"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status_code":500}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "disk full")

	w = doJSON(t, router, http.MethodGet, "/summary?path=store", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var summary managed.SummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.False(t, summary.StatusCode.Success())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(vecdb.ErrInvalidPath))
	assert.Equal(t, http.StatusBadRequest, statusFor(vecdb.ErrNoEmbedding))
	assert.Equal(t, http.StatusNotFound, statusFor(vecdb.ErrStoreNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(vecdb.ErrStoreClosed))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errDiskFull))
}
