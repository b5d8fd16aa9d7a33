package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrouter/internal/classify"
	"github.com/fyrsmithlabs/docrouter/internal/config"
	"github.com/fyrsmithlabs/docrouter/internal/conflict"
	"github.com/fyrsmithlabs/docrouter/internal/identify"
	"github.com/fyrsmithlabs/docrouter/internal/knowledge"
	"github.com/fyrsmithlabs/docrouter/internal/pipeline"
	"github.com/fyrsmithlabs/docrouter/internal/routing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	logger := zap.NewNop()

	db, err := knowledge.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gate, err := conflict.NewGate(db, logger)
	require.NoError(t, err)

	svc, err := pipeline.NewService(pipeline.Deps{
		Config:     cfg,
		DB:         db,
		Gate:       gate,
		Identifier: identify.New(cfg.Identify, nil, logger),
		Classifier: classify.New(cfg.Classify, logger),
		Queue:      routing.NewQueue(db.SQL(), logger),
		Logger:     logger,
	})
	require.NoError(t, err)

	srv, err := NewServer(svc, logger, nil)
	require.NoError(t, err)
	return srv
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestServer_RequiresService(t *testing.T) {
	_, err := NewServer(nil, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestServer_Classify(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/classify",
		`{"sender":"someone@example.com","subject":"Hello","filename":"notes.pdf"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp pipeline.ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, routing.BandVeryLow, resp.Decision.Band)
	assert.NotEmpty(t, resp.ReviewItemID, "an unknown sender and asset goes to review")
}

func TestServer_Classify_MissingFilename(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/classify", `{"subject":"Hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Classify_MalformedBody(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/classify", `{"filename":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Feedback(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/feedback",
		`{"filename":"capital_call.pdf","category":"loan_documents","asset_id":"asset-i3"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp FeedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(conflict.OutcomeInserted), resp.Outcome)
	assert.NotEmpty(t, resp.FactID)
}

func TestServer_Feedback_MissingCategory(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/feedback", `{"filename":"a.pdf"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Conflicts_EmptyList(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/api/v1/conflicts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServer_ResolveConflict_BadResolution(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/conflicts/c-1/resolve",
		`{"resolution":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ResolveConflict_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/conflicts/missing/resolve",
		`{"resolution":"updated"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Reviews_RoundTrip(t *testing.T) {
	srv := newTestServer(t)

	// Create a review item by classifying an unmatchable attachment.
	rec := doJSON(srv, http.MethodPost, "/api/v1/classify",
		`{"subject":"Hello","filename":"mystery.pdf"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var classified pipeline.ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &classified))
	require.NotEmpty(t, classified.ReviewItemID)

	rec = doJSON(srv, http.MethodGet, "/api/v1/reviews", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []*routing.ReviewItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)

	rec = doJSON(srv, http.MethodPost, "/api/v1/reviews/"+classified.ReviewItemID+"/resolve",
		`{"category":"correspondence"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item routing.ReviewItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "correspondence", item.Category)

	rec = doJSON(srv, http.MethodGet, "/api/v1/reviews", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServer_ResolveReview_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/reviews/missing/resolve",
		`{"discard":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Stats(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/api/v1/knowledge/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats pipeline.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.PendingReviews)
	assert.Contains(t, stats.Collections, knowledge.CollectionAssets)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
