package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/futurework/internal/ai"
	"github.com/kiranshivaraju/futurework/internal/ai/mock"
	"github.com/kiranshivaraju/futurework/internal/api"
	"github.com/kiranshivaraju/futurework/internal/api/handler"
	mw "github.com/kiranshivaraju/futurework/internal/api/middleware"
	"github.com/kiranshivaraju/futurework/internal/cache"
	"github.com/kiranshivaraju/futurework/internal/config"
	"github.com/kiranshivaraju/futurework/internal/export"
	"github.com/kiranshivaraju/futurework/internal/forecast"
	"github.com/kiranshivaraju/futurework/internal/session"
	"github.com/kiranshivaraju/futurework/internal/sheets"
	"github.com/kiranshivaraju/futurework/internal/state"
	"github.com/kiranshivaraju/futurework/internal/store"
	"github.com/kiranshivaraju/futurework/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

var (
	testTenantID = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testRawKey   = "fw_test_contract_key_1234567890"
	testPrefix   = testRawKey[:8]
	testInput    = models.JobInput{Industry: "Finance", Country: "Germany", Role: "Data Analyst"}
)

func testKeyHash() string {
	h, _ := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	return string(h)
}

// ─── mock store ──────────────────────────────────────────────────────────────

type mockStore struct {
	mu   sync.Mutex
	keys []*models.APIKey
	runs map[uuid.UUID]*models.Run
}

func newMockStore() *mockStore {
	return &mockStore{
		keys: []*models.APIKey{{
			ID:        uuid.New(),
			TenantID:  testTenantID,
			Name:      "test-key",
			KeyHash:   testKeyHash(),
			KeyPrefix: testPrefix,
			Scopes:    []string{"read", "write", "admin"},
		}},
		runs: make(map[uuid.UUID]*models.Run),
	}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	return &models.Tenant{ID: testTenantID, Name: "test-tenant"}, nil
}

func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.keys {
		if existing.Name == key.Name && existing.TenantID == key.TenantID {
			return store.ErrDuplicateKey
		}
	}
	s.keys = append(s.keys, key)
	return nil
}

func (s *mockStore) ListAPIKeys(_ context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) RevokeAPIKey(_ context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.keys {
		if k.ID == id && k.TenantID == tenantID {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *mockStore) CreateRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = uuid.New()
	run.CreatedAt = time.Now()
	run.UpdatedAt = run.CreatedAt
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *mockStore) FinishRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *mockStore) GetRun(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok && r.TenantID == tenantID {
		cp := *r
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *mockStore) ListRuns(_ context.Context, f store.RunFilter) ([]*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Run
	for _, r := range s.runs {
		if r.TenantID != f.TenantID {
			continue
		}
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *mockStore) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

var _ store.Store = (*mockStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type mockCache struct {
	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]int64
	pingErr  error
}

func newMockCache() *mockCache {
	return &mockCache{values: make(map[string][]byte), counters: make(map[string]int64)}
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *mockCache) Ping(_ context.Context) error { return c.pingErr }

func (c *mockCache) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.values[key]; held {
		return false, nil
	}
	c.values[key] = []byte("1")
	return true, nil
}

func (c *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*mockCache)(nil)

// ─── fake spreadsheet ────────────────────────────────────────────────────────

type fakeSheets struct {
	mu       sync.Mutex
	rows     [][]string
	appended int
}

func (f *fakeSheets) EnsureStore(_ context.Context, _ *session.Session) (string, error) {
	return "sheet-1", nil
}

func (f *fakeSheets) AppendRows(_ context.Context, sess *session.Session, rows []sheets.Row) error {
	if !sess.Connected() {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.rows = append(f.rows, r.Values())
	}
	f.appended += len(rows)
	return nil
}

func (f *fakeSheets) OverwriteRow(_ context.Context, sess *session.Session, idx int, row sheets.Row) error {
	if !sess.Connected() {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[idx-1] = row.Values()
	return nil
}

func (f *fakeSheets) FetchAllRows(_ context.Context, sess *session.Session) ([][]string, error) {
	if !sess.Connected() {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, nil
}

var _ sheets.Client = (*fakeSheets)(nil)

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server   *httptest.Server
	store    *mockStore
	cache    *mockCache
	sheets   *fakeSheets
	provider *mock.MockProvider
	auth     *session.Authenticator
	registry *session.Registry
}

type serverOption func(*testServer)

func withProvider(p *mock.MockProvider) serverOption {
	return func(ts *testServer) { ts.provider = p }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.contract","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	ts := &testServer{
		store:    newMockStore(),
		cache:    newMockCache(),
		sheets:   &fakeSheets{rows: [][]string{sheets.Header}},
		provider: mock.NewMockProvider(),
		registry: session.NewRegistry(),
	}
	for _, opt := range opts {
		opt(ts)
	}

	st := state.NewCacheStore(ts.cache)
	ts.auth = session.NewAuthenticator(config.OAuthConfig{
		RedirectURL: "http://localhost:8080/api/v1/sheets/callback",
		AuthURL:     "https://accounts.example.com/o/oauth2/auth",
		TokenURL:    tokenSrv.URL,
	}, st, ts.registry)

	flow := forecast.NewFlow(ai.NewService(ts.provider, time.Second), ts.sheets, forecast.WithRunLog(ts.store))
	sheetsH := handler.NewSheetsHandlers(ts.auth, st)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(ts.store),
		RateLimit: mw.NewRateLimit(ts.cache, 10), // low limit for rate-limit tests
		Busy:      mw.NewBusy(ts.cache, time.Minute),

		HealthHandler:  handler.NewHealthHandler(ts.store, ts.cache),
		PredictHandler: handler.NewPredictHandler(flow, ts.registry),
		BulkHandler:    handler.NewBulkHandler(flow, ts.registry),
		ExportHandler:  handler.NewExportHandler(),

		GetRunHandler:   handler.NewGetRunHandler(ts.store),
		ListRunsHandler: handler.NewListRunsHandler(ts.store),

		SheetsStatusHandler:   sheetsH.Status,
		SheetsClientHandler:   sheetsH.SetClient,
		SheetsConnectHandler:  sheetsH.Connect,
		SheetsSignOutHandler:  sheetsH.SignOut,
		SheetsCallbackHandler: sheetsH.Callback,

		CreateKeyHandler: handler.NewCreateKeyHandler(ts.store),
		ListKeysHandler:  handler.NewListKeysHandler(ts.store),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(ts.store),
	}

	ts.server = httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(ts.server.Close)
	return ts
}

// connect gives the test tenant a live spreadsheet session.
func (ts *testServer) connect() {
	ts.registry.Put(&session.Session{
		Owner:       testTenantID.String(),
		AccessToken: "ya29.test",
		Expiry:      time.Now().Add(time.Hour),
	})
}

func (ts *testServer) authRequest(method, path string, body any) *http.Request {
	return ts.keyRequest(testRawKey, method, path, body)
}

func (ts *testServer) keyRequest(key, method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, ts.server.URL+path, &buf)
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (ts *testServer) unauthRequest(method, path string) *http.Request {
	req, _ := http.NewRequest(method, ts.server.URL+path, nil)
	return req
}

func do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func dataOf(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	return parseBody(t, resp)["data"].(map[string]any)
}

func errorOf(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	return parseBody(t, resp)["error"].(map[string]any)
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONTRACT TESTS
// ═══════════════════════════════════════════════════════════════════════════════

// ─── GET /api/v1/health ──────────────────────────────────────────────────────

func TestHealth_200_AllOK(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.unauthRequest("GET", "/api/v1/health"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", dataOf(t, resp)["status"])
}

func TestHealth_503_CacheDown(t *testing.T) {
	ts := newTestServer(t)
	ts.cache.pingErr = errors.New("connection refused")

	resp := do(t, ts.unauthRequest("GET", "/api/v1/health"))

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	e := errorOf(t, resp)
	assert.Equal(t, "DEGRADED", e["code"])
	details := e["details"].(map[string]any)
	assert.Equal(t, "ok", details["database"])
	assert.Equal(t, "degraded", details["cache"])
}

// ─── POST /api/v1/predictions ────────────────────────────────────────────────

func TestPredict_200_Uncached(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions", testInput))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataOf(t, resp)
	assert.Equal(t, models.OutcomeUncached, data["outcome"])
	_, hasStatus := data["cache_status"]
	assert.False(t, hasStatus)
	preds := data["predictions"].([]any)
	require.Len(t, preds, 1)
	p := preds[0].(map[string]any)
	assert.Equal(t, "Data Analyst", p["role"])
	assert.Equal(t, []any{"SQL", "Domain knowledge", "Stakeholder communication"}, p["transferable_skills"])
	assert.NotEmpty(t, data["run_id"])
	assert.Zero(t, ts.sheets.appended, "disconnected sessions never write")
}

func TestPredict_200_MissCachesResult(t *testing.T) {
	ts := newTestServer(t)
	ts.connect()

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions", testInput))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.OutcomeMiss, dataOf(t, resp)["outcome"])
	assert.Equal(t, 1, ts.sheets.appended)
}

func TestPredict_200_FreshHitSkipsModel(t *testing.T) {
	ts := newTestServer(t)
	ts.connect()
	cached := mock.SamplePrediction(testInput)
	cached.FutureJob = "Cached Answer"
	ts.sheets.rows = append(ts.sheets.rows, sheets.NewRow(cached, time.Now()).Values())

	input := models.JobInput{Industry: " finance ", Country: "GERMANY", Role: "data analyst"}
	resp := do(t, ts.authRequest("POST", "/api/v1/predictions", input))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataOf(t, resp)
	assert.Equal(t, forecast.CacheStatusHit, data["cache_status"])
	assert.Equal(t, models.OutcomeFreshHit, data["outcome"])
	assert.Equal(t, "Cached Answer", data["predictions"].([]any)[0].(map[string]any)["future_job"])
	assert.Zero(t, ts.provider.Calls())
}

func TestPredict_200_StaleHitUpdatesRow(t *testing.T) {
	ts := newTestServer(t)
	ts.connect()
	old := sheets.NewRow(mock.SamplePrediction(testInput), time.Now().AddDate(0, -2, 0)).Values()
	ts.sheets.rows = append(ts.sheets.rows, old)

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions", testInput))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataOf(t, resp)
	assert.Equal(t, forecast.CacheStatusStaleUpdated, data["cache_status"])
	assert.Equal(t, models.OutcomeStaleHit, data["outcome"])
	assert.Equal(t, float64(2), data["row_index"])
	assert.Equal(t, time.Now().UTC().Format(sheets.DateLayout), ts.sheets.rows[1][len(sheets.Header)-1])
	assert.Zero(t, ts.sheets.appended)
}

func TestPredict_400_MissingFields(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions", map[string]string{"industry": "Finance", "role": "  "}))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := errorOf(t, resp)
	assert.Equal(t, "VALIDATION_ERROR", e["code"])
	details := e["details"].(map[string]any)
	assert.Contains(t, details, "country")
	assert.Contains(t, details, "role")
	assert.NotContains(t, details, "industry")
	assert.Zero(t, ts.provider.Calls())
}

func TestPredict_400_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)
	req, _ := http.NewRequest("POST", ts.server.URL+"/api/v1/predictions", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+testRawKey)

	resp := do(t, req)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errorOf(t, resp)["code"])
}

func TestPredict_502_PredictionFailed(t *testing.T) {
	ts := newTestServer(t, withProvider(mock.NewFailingProvider(errors.New("quota exceeded"))))
	ts.connect()

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions", testInput))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	e := errorOf(t, resp)
	assert.Equal(t, "PREDICTION_FAILED", e["code"])
	assert.Equal(t, "Failed to generate prediction. Please try again.", e["message"])
	assert.Zero(t, ts.sheets.appended)

	runs, err := ts.store.ListRuns(context.Background(), store.RunFilter{TenantID: testTenantID})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
}

func TestPredict_409_FlowInProgress(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.cache.Set(context.Background(), cache.FlowLockKey(testTenantID.String()), []byte("1"), 0))

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions", testInput))

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "FLOW_IN_PROGRESS", errorOf(t, resp)["code"])
	assert.Zero(t, ts.provider.Calls())
}

func TestPredict_ReleasesFlowLock(t *testing.T) {
	ts := newTestServer(t)

	first := do(t, ts.authRequest("POST", "/api/v1/predictions", testInput))
	second := do(t, ts.authRequest("POST", "/api/v1/predictions", testInput))

	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusOK, second.StatusCode)
}

// ─── POST /api/v1/predictions/bulk ───────────────────────────────────────────

func TestBulk_200_FivePredictions(t *testing.T) {
	ts := newTestServer(t)
	ts.connect()

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions/bulk", map[string]string{"industry": "Retail"}))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataOf(t, resp)
	assert.Len(t, data["predictions"], 5)
	assert.Equal(t, models.OutcomeMiss, data["outcome"])
	assert.Equal(t, 5, ts.sheets.appended)
}

func TestBulk_400_MissingIndustry(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions/bulk", map[string]string{"industry": ""}))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorOf(t, resp)["code"])
}

func TestBulk_502_Message(t *testing.T) {
	ts := newTestServer(t, withProvider(mock.NewFailingProvider(errors.New("boom"))))

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions/bulk", map[string]string{"industry": "Retail"}))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Failed to generate predictions.", errorOf(t, resp)["message"])
}

// ─── POST /api/v1/predictions/export ─────────────────────────────────────────

func TestExport_200_CSVAttachment(t *testing.T) {
	ts := newTestServer(t)
	p := mock.SamplePrediction(testInput)
	p.JobDescription = `Builds "quarterly" <reports>, mostly`

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions/export",
		map[string]any{"predictions": []models.Prediction{p}}))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="job_predictions.csv"`, resp.Header.Get("Content-Disposition"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.True(t, strings.HasPrefix(body, strings.Join(export.Header, ",")+"\n"))
	assert.False(t, strings.HasSuffix(body, "\n"))
	assert.Contains(t, body, `"Builds \"quarterly\" <reports>, mostly"`)

	back, err := export.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, []models.Prediction{p}, back)
}

func TestExport_200_EmptyIsHeaderOnly(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("POST", "/api/v1/predictions/export", map[string]any{"predictions": []any{}}))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, strings.Join(export.Header, ","), string(raw))
}

// ─── GET /api/v1/runs ────────────────────────────────────────────────────────

func TestRuns_GetAfterPredict(t *testing.T) {
	ts := newTestServer(t)

	pred := do(t, ts.authRequest("POST", "/api/v1/predictions", testInput))
	require.Equal(t, http.StatusOK, pred.StatusCode)
	runID := dataOf(t, pred)["run_id"].(string)

	resp := do(t, ts.authRequest("GET", "/api/v1/runs/"+runID, nil))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataOf(t, resp)
	assert.Equal(t, runID, data["id"])
	assert.Equal(t, models.RunKindSingle, data["kind"])
	assert.Equal(t, models.RunStatusCompleted, data["status"])
	assert.Equal(t, models.OutcomeUncached, data["outcome"])
	assert.Equal(t, "mock", data["provider"])
	assert.Equal(t, float64(1), data["prediction_count"])
}

func TestRuns_400_InvalidID(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("GET", "/api/v1/runs/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_RUN_ID", errorOf(t, resp)["code"])
}

func TestRuns_404_Unknown(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("GET", "/api/v1/runs/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "RUN_NOT_FOUND", errorOf(t, resp)["code"])
}

func TestRuns_List_FilterAndMeta(t *testing.T) {
	ts := newTestServer(t)
	do(t, ts.authRequest("POST", "/api/v1/predictions", testInput))
	do(t, ts.authRequest("POST", "/api/v1/predictions/bulk", map[string]string{"industry": "Retail"}))
	require.Equal(t, 2, ts.store.runCount())

	resp := do(t, ts.authRequest("GET", "/api/v1/runs?kind=bulk&limit=5", nil))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, models.RunKindBulk, data[0].(map[string]any)["kind"])
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["count"])
	assert.Equal(t, float64(5), meta["limit"])
}

func TestRuns_List_400_BadParams(t *testing.T) {
	ts := newTestServer(t)

	for _, q := range []string{"limit=0", "limit=101", "limit=abc", "kind=weekly", "status=done"} {
		t.Run(q, func(t *testing.T) {
			resp := do(t, ts.authRequest("GET", "/api/v1/runs?"+q, nil))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

// ─── /api/v1/sheets ──────────────────────────────────────────────────────────

func TestSheets_Status_Disconnected(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("GET", "/api/v1/sheets/status", nil))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataOf(t, resp)
	assert.Equal(t, false, data["connected"])
	assert.NotContains(t, data, "client_id")
}

func TestSheets_Connect_409_WithoutClientID(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("GET", "/api/v1/sheets/connect", nil))

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CLIENT_ID_REQUIRED", errorOf(t, resp)["code"])
}

func TestSheets_SetClient_400_Empty(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("PUT", "/api/v1/sheets/client", map[string]string{"client_id": "   "}))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSheets_ConsentRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	set := do(t, ts.authRequest("PUT", "/api/v1/sheets/client", map[string]string{"client_id": " my-client.apps.googleusercontent.com "}))
	require.Equal(t, http.StatusOK, set.StatusCode)
	assert.Equal(t, "my-client.apps.googleusercontent.com", dataOf(t, set)["client_id"])

	conn := do(t, ts.authRequest("GET", "/api/v1/sheets/connect", nil))
	require.Equal(t, http.StatusOK, conn.StatusCode)
	authURL, err := url.Parse(dataOf(t, conn)["auth_url"].(string))
	require.NoError(t, err)
	q := authURL.Query()
	assert.Equal(t, "my-client.apps.googleusercontent.com", q.Get("client_id"))
	assert.Equal(t, session.SpreadsheetsScope, q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	require.NotEmpty(t, q.Get("state"))

	cb := do(t, ts.unauthRequest("GET", "/api/v1/sheets/callback?state="+url.QueryEscape(q.Get("state"))+"&code=good-code"))
	require.Equal(t, http.StatusOK, cb.StatusCode)
	assert.Equal(t, true, dataOf(t, cb)["connected"])

	status := do(t, ts.authRequest("GET", "/api/v1/sheets/status", nil))
	data := dataOf(t, status)
	assert.Equal(t, true, data["connected"])
	assert.NotEmpty(t, data["expires_at"])

	out := do(t, ts.authRequest("DELETE", "/api/v1/sheets/session", nil))
	assert.Equal(t, http.StatusNoContent, out.StatusCode)
	assert.Nil(t, ts.registry.Get(testTenantID.String()))
}

func TestSheets_Callback_400_UnknownState(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.unauthRequest("GET", "/api/v1/sheets/callback?state=nope&code=good-code"))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", errorOf(t, resp)["code"])
}

func TestSheets_Callback_400_Denied(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.unauthRequest("GET", "/api/v1/sheets/callback?error=access_denied"))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "CONSENT_DENIED", errorOf(t, resp)["code"])
}

func TestSheets_Callback_502_BadCode(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.auth.SetClientID(context.Background(), testTenantID.String(), "cid"))
	authURL, err := ts.auth.Begin(context.Background(), testTenantID.String(), "")
	require.NoError(t, err)
	u, _ := url.Parse(authURL)

	resp := do(t, ts.unauthRequest("GET", "/api/v1/sheets/callback?state="+url.QueryEscape(u.Query().Get("state"))+"&code=bad-code"))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "TOKEN_EXCHANGE_FAILED", errorOf(t, resp)["code"])
}

func TestSheets_SetClient_SignsOut(t *testing.T) {
	ts := newTestServer(t)
	ts.connect()

	resp := do(t, ts.authRequest("PUT", "/api/v1/sheets/client", map[string]string{"client_id": "other"}))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, ts.registry.Get(testTenantID.String()))
}

// ─── /api/v1/admin/keys ──────────────────────────────────────────────────────

func TestCreateKey_201_KeyAuthenticates(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{
		"name": "ci-key", "scopes": []string{"read", "write"},
	}))

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := dataOf(t, resp)
	rawKey := data["key"].(string)
	assert.True(t, strings.HasPrefix(rawKey, handler.KeyPrefix))
	assert.Equal(t, rawKey[:8], data["key_prefix"])

	runs := do(t, ts.keyRequest(rawKey, "GET", "/api/v1/runs", nil))
	assert.Equal(t, http.StatusOK, runs.StatusCode)
}

func TestCreateKey_400_Invalid(t *testing.T) {
	ts := newTestServer(t)

	for name, body := range map[string]any{
		"no name":   map[string]any{"scopes": []string{"read"}},
		"bad scope": map[string]any{"name": "x", "scopes": []string{"root"}},
	} {
		t.Run(name, func(t *testing.T) {
			resp := do(t, ts.authRequest("POST", "/api/v1/admin/keys", body))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCreateKey_409_Duplicate(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{"name": "test-key"}))

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_KEY", errorOf(t, resp)["code"])
}

func TestListKeys_DoesNotExposeRawKey(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("GET", "/api/v1/admin/keys", nil))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	keys := parseBody(t, resp)["data"].([]any)
	require.Len(t, keys, 1)
	k := keys[0].(map[string]any)
	assert.Equal(t, testPrefix, k["key_prefix"])
	assert.NotContains(t, k, "key")
	assert.NotContains(t, k, "key_hash")
}

func TestRevokeKey(t *testing.T) {
	ts := newTestServer(t)
	created := do(t, ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{"name": "temp"}))
	id := dataOf(t, created)["id"].(string)

	resp := do(t, ts.authRequest("DELETE", "/api/v1/admin/keys/"+id, nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	again := do(t, ts.authRequest("DELETE", "/api/v1/admin/keys/"+id, nil))
	assert.Equal(t, http.StatusNotFound, again.StatusCode)

	bad := do(t, ts.authRequest("DELETE", "/api/v1/admin/keys/xyz", nil))
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

// ─── cross-cutting ───────────────────────────────────────────────────────────

func TestAuth_AllProtectedEndpoints_Reject401(t *testing.T) {
	ts := newTestServer(t)

	endpoints := []struct{ method, path string }{
		{"POST", "/api/v1/predictions"},
		{"POST", "/api/v1/predictions/bulk"},
		{"POST", "/api/v1/predictions/export"},
		{"GET", "/api/v1/runs"},
		{"GET", "/api/v1/runs/" + uuid.NewString()},
		{"GET", "/api/v1/sheets/status"},
		{"PUT", "/api/v1/sheets/client"},
		{"GET", "/api/v1/sheets/connect"},
		{"DELETE", "/api/v1/sheets/session"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
		{"DELETE", "/api/v1/admin/keys/" + uuid.NewString()},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			resp := do(t, ts.unauthRequest(ep.method, ep.path))
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "INVALID_TOKEN", errorOf(t, resp)["code"])
		})
	}
}

func TestAuth_InvalidBearerToken(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.keyRequest("fw_wrong_key_000000000", "GET", "/api/v1/runs", nil))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimit_Headers_Present(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("GET", "/api/v1/runs", nil))

	assert.Equal(t, "10", resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
}

func TestRateLimit_429_Exceeded(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 10; i++ {
		resp := do(t, ts.authRequest("GET", "/api/v1/runs", nil))
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp := do(t, ts.authRequest("GET", "/api/v1/runs", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorOf(t, resp)["code"])
}

func TestAdminEndpoints_403_WithoutAdminScope(t *testing.T) {
	ts := newTestServer(t)
	readKey := "fw_readonly_key_abcdefgh"
	h, _ := bcrypt.GenerateFromPassword([]byte(readKey), bcrypt.MinCost)
	ts.store.keys = append(ts.store.keys, &models.APIKey{
		ID: uuid.New(), TenantID: testTenantID, Name: "read-only",
		KeyHash: string(h), KeyPrefix: readKey[:8], Scopes: []string{"read"},
	})

	resp := do(t, ts.keyRequest(readKey, "GET", "/api/v1/admin/keys", nil))

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorOf(t, resp)["code"])
}

func TestResponseFormat_RequestIDEchoed(t *testing.T) {
	ts := newTestServer(t)
	req := ts.unauthRequest("GET", "/api/v1/health")
	req.Header.Set(mw.RequestIDHeader, "trace-42")

	resp := do(t, req)

	assert.Equal(t, "trace-42", resp.Header.Get(mw.RequestIDHeader))
}

func TestResponseFormat_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts.authRequest("GET", "/api/v1/runs/"+uuid.NewString(), nil))

	body := parseBody(t, resp)
	assert.NotContains(t, body, "data")
	e := body["error"].(map[string]any)
	assert.NotEmpty(t, e["code"])
	assert.NotEmpty(t, e["message"])
}
