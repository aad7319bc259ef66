package api

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
	"time"

	"github.com/gorilla/websocket"
	"github.com/smukkama/weather-pipeline/internal/aggregation"
	"github.com/smukkama/weather-pipeline/internal/alarming"
	"github.com/smukkama/weather-pipeline/internal/ingestion"
	"github.com/smukkama/weather-pipeline/internal/notification"
	"github.com/smukkama/weather-pipeline/internal/protocol"
	"github.com/smukkama/weather-pipeline/internal/scheduler"
	"github.com/smukkama/weather-pipeline/internal/store"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const topic = "notifications"

var testCities = []weather.City{
	{Name: "Delhi", Latitude: 28.6667, Longitude: 77.2167},
	{Name: "Mumbai", Latitude: 19.0144, Longitude: 72.8479},
}

type stubFetcher struct {
	mu    sync.Mutex
	down  bool
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, city weather.City) (weather.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return weather.Observation{}, &weather.FetchError{City: city.Name, Err: errors.New("connection refused")}
	}
	return weather.Observation{
		City:              city.Name,
		Timestamp:         time.Now(),
		Temperature:       30,
		Humidity:          60,
		DominantCondition: "Clear",
	}, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	store   *store.MemoryStore
	fetcher *stubFetcher
	hub     *notification.Hub
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	s := store.NewMemoryStore()
	for _, c := range testCities {
		require.NoError(t, s.UpsertCity(context.Background(), c))
	}

	fetcher := &stubFetcher{}
	hub := notification.NewHub(0, 0, logger)
	orch := ingestion.NewOrchestrator(
		ingestion.Config{Cities: testCities, Topic: topic, Concurrency: 2, CycleTimeout: 5 * time.Second},
		fetcher,
		s,
		aggregation.NewDailyAggregator(s, s, time.UTC, logger),
		alarming.NewEvaluator(s, s, logger),
		hub,
		ingestion.NewConnectionState(),
		logger,
	)
	sched := scheduler.New(orch, s, 10, time.UTC, logger)

	srv := NewServer(Config{Topic: topic}, s, orch, sched, hub, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})

	return &testEnv{store: s, fetcher: fetcher, hub: hub, server: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/nope/", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, errorMessage(t, body))
}

func TestGetCities(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/get-cities/", "")
	require.Equal(t, http.StatusOK, status)

	var cities []weather.City
	require.NoError(t, json.Unmarshal(body, &cities))
	assert.Equal(t, testCities, cities)
}

func TestCurrentWeather_RunsCycleWhenUnhealthy(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/current-weather/", "")
	require.Equal(t, http.StatusOK, status)

	var latest []weather.Observation
	require.NoError(t, json.Unmarshal(body, &latest))
	require.Len(t, latest, 2)
	assert.Equal(t, "Delhi", latest[0].City)
	assert.Equal(t, 2, env.fetcher.callCount())

	// healthy and complete: served from the store
	status, _ = env.do(t, http.MethodGet, "/api/current-weather/", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, env.fetcher.callCount())
}

func TestCurrentWeather_UpstreamDown(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.down = true

	status, body := env.do(t, http.MethodGet, "/api/current-weather/", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errorMessage(t, body), "not connected")
}

func TestCheckConnectionStatus(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.down = true

	status, body := env.do(t, http.MethodGet, "/api/check-connection-status/", "")
	require.Equal(t, http.StatusOK, status)

	var cs weather.ConnectionStatus
	require.NoError(t, json.Unmarshal(body, &cs))
	assert.False(t, cs.Healthy)
	assert.Nil(t, cs.LastSuccessfulConnection)

	env.fetcher.down = false
	status, body = env.do(t, http.MethodGet, "/api/check-connection-status/", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &cs))
	assert.True(t, cs.Healthy)
	assert.NotNil(t, cs.LastSuccessfulConnection)
}

func TestInterval(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/get-interval/", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"interval":10}`, string(body))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"zero", `{"interval":0}`, http.StatusBadRequest},
		{"negative", `{"interval":-3}`, http.StatusBadRequest},
		{"missing", `{}`, http.StatusBadRequest},
		{"not a number", `{"interval":"soon"}`, http.StatusBadRequest},
		{"fraction", `{"interval":1.5}`, http.StatusBadRequest},
		{"numeric string", `{"interval":"20"}`, http.StatusOK},
		{"number", `{"interval":15}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := env.do(t, http.MethodPost, "/api/set-interval/", tt.body)
			assert.Equal(t, tt.status, status)
		})
	}

	status, body = env.do(t, http.MethodGet, "/api/get-interval/", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"interval":15}`, string(body))

	stored, err := env.store.GetInterval(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, stored)
}

func TestGetRollups_Pagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	day := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		require.NoError(t, env.store.UpsertRollup(ctx, weather.DailyRollup{City: "Delhi", Date: day.AddDate(0, 0, i), AvgTemp: float64(i)}))
	}
	require.NoError(t, env.store.UpsertRollup(ctx, weather.DailyRollup{City: "Mumbai", Date: day, AvgTemp: 25}))

	status, body := env.do(t, http.MethodGet, "/api/get-rollups/", "")
	require.Equal(t, http.StatusOK, status)

	var page RollupPage
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, 8, page.Count)
	require.NotNil(t, page.Next)
	assert.Contains(t, *page.Next, "page=2")
	assert.Nil(t, page.Previous)
	require.Len(t, page.Results["Delhi"], 6)
	assert.Equal(t, day.AddDate(0, 0, 7), page.Results["Delhi"][0].Date, "newest first")
	assert.Len(t, page.Results["Mumbai"], 1)

	status, body = env.do(t, http.MethodGet, "/api/get-rollups/?page=2", "")
	require.Equal(t, http.StatusOK, status)
	page = RollupPage{}
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Nil(t, page.Next)
	require.NotNil(t, page.Previous)
	assert.Len(t, page.Results["Delhi"], 2)
	assert.Empty(t, page.Results["Mumbai"])

	for _, bad := range []string{"3", "0", "abc"} {
		status, _ = env.do(t, http.MethodGet, "/api/get-rollups/?page="+bad, "")
		assert.Equal(t, http.StatusNotFound, status, "page=%s", bad)
	}
}

func TestGetRollups_EmptyFirstPage(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/get-rollups/", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"count":0,"next":null,"previous":null,"results":{"Delhi":[],"Mumbai":[]}}`, string(body))
}

func TestSetThresholds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	status, body := env.do(t, http.MethodPost, "/api/set-thresholds/",
		`{"city":"Delhi","temperature":{"min_threshold":10,"max_threshold":35,"consecutive_updates":2},"condition":{"condition":"Rain"}}`)
	require.Equal(t, http.StatusOK, status, string(body))

	rule, err := env.store.GetRule(ctx, "Delhi", weather.KindTemperature)
	require.NoError(t, err)
	require.NotNil(t, rule.Min)
	require.NotNil(t, rule.Max)
	assert.Equal(t, 10.0, *rule.Min)
	assert.Equal(t, 35.0, *rule.Max)
	assert.Equal(t, 2, rule.ConsecutiveUpdates)

	cond, err := env.store.GetRule(ctx, "Delhi", weather.KindCondition)
	require.NoError(t, err)
	assert.Equal(t, "Rain", cond.Condition)
	assert.Equal(t, weather.DefaultConsecutiveUpdates, cond.ConsecutiveUpdates)

	_, err = env.store.GetRule(ctx, "Delhi", weather.KindHumidity)
	assert.Error(t, err, "absent kinds are not created")

	// partial patch keeps max, falsy clears min
	status, _ = env.do(t, http.MethodPost, "/api/set-thresholds/",
		`{"city":"Delhi","temperature":{"min_threshold":""}}`)
	require.Equal(t, http.StatusOK, status)

	updated, err := env.store.GetRule(ctx, "Delhi", weather.KindTemperature)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, updated.ID)
	assert.Nil(t, updated.Min)
	require.NotNil(t, updated.Max)
	assert.Equal(t, 35.0, *updated.Max)
	assert.Equal(t, 2, updated.ConsecutiveUpdates)
}

func TestSetThresholds_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing city", `{"temperature":{"min_threshold":1}}`, http.StatusBadRequest},
		{"unknown city", `{"city":"Atlantis","temperature":{"min_threshold":1}}`, http.StatusNotFound},
		{"bad bound", `{"city":"Delhi","humidity":{"max_threshold":"lots"}}`, http.StatusBadRequest},
		{"bounds on condition", `{"city":"Delhi","condition":{"condition":"Rain","min_threshold":3}}`, http.StatusBadRequest},
		{"unknown field", `{"city":"Delhi","wind_speed":{"speed":3}}`, http.StatusBadRequest},
		{"zero window", `{"city":"Delhi","wind_speed":{"max_threshold":3,"consecutive_updates":-1}}`, http.StatusBadRequest},
		{"malformed", `{"city":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/set-thresholds/", tt.body)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, errorMessage(t, body))
		})
	}

	// a failing patch writes nothing
	status, _ := env.do(t, http.MethodPost, "/api/set-thresholds/",
		`{"city":"Delhi","temperature":{"min_threshold":5},"humidity":{"max_threshold":"lots"}}`)
	require.Equal(t, http.StatusBadRequest, status)
	_, err := env.store.GetRule(context.Background(), "Delhi", weather.KindTemperature)
	assert.Error(t, err)
}

func TestGetThresholds(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodPost, "/api/set-thresholds/", `{"city":"Mumbai","humidity":{"max_threshold":90}}`)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodGet, "/api/get-thresholds/", "")
	require.Equal(t, http.StatusOK, status)

	var resp map[string]map[string][]weather.ThresholdRule
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Contains(t, resp, "Delhi")
	assert.Empty(t, resp["Delhi"]["humidity"])
	require.Len(t, resp["Mumbai"]["humidity"], 1)
	assert.Equal(t, 90.0, *resp["Mumbai"]["humidity"][0].Max)
	assert.Empty(t, resp["Mumbai"]["temperature"])
}

func TestDeleteThreshold(t *testing.T) {
	env := newTestEnv(t)

	max := 40.0
	rule, err := env.store.UpsertRule(context.Background(), weather.ThresholdRule{
		City: "Delhi", Kind: weather.KindTemperature, Max: &max, ConsecutiveUpdates: 3,
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"missing id", "/api/delete-threshold/", `{"type":"temperature"}`, http.StatusBadRequest},
		{"unknown type", "/api/delete-threshold/", `{"type":"pressure","id":1}`, http.StatusBadRequest},
		{"no such row", "/api/delete-threshold/", `{"type":"humidity","id":1}`, http.StatusNotFound},
		{"query string", "/api/delete-threshold/?type=temperature&id=" + jsonInt(rule.ID), "", http.StatusOK},
		{"already gone", "/api/delete-threshold/", `{"type":"temperature","id":` + jsonInt(rule.ID) + `}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodDelete, tt.path, tt.body)
			assert.Equal(t, tt.status, status, string(body))
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"deleted":true}`, string(body))
			}
		})
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestNotificationsWebsocket(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/notifications/"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	// trigger a cycle through the API; it publishes to the hub
	status, _ := env.do(t, http.MethodGet, "/api/current-weather/", "")
	require.Equal(t, http.StatusOK, status)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	envelope, err := protocol.DecodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgTypeWeather, envelope.Type)

	report, err := envelope.CycleReport()
	require.NoError(t, err)
	assert.Len(t, report.Observations, 2)
}
