package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sambetts/office-nudge-sub000/internal/loader"
	"github.com/sambetts/office-nudge-sub000/internal/metrics"
	"github.com/sambetts/office-nudge-sub000/internal/model"
	"github.com/sambetts/office-nudge-sub000/internal/service"
	"github.com/sambetts/office-nudge-sub000/internal/statsfeed"
	"github.com/sambetts/office-nudge-sub000/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type adminFixture struct {
	mux       *http.ServeMux
	userStore *store.MemoryUserStore
	dirLoader *loader.FixtureLoader
	feed      *statsfeed.FixtureFeed
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	userStore := store.NewMemoryUserStore()
	dirLoader := loader.NewFixtureLoader()
	feed := statsfeed.NewFixtureFeed()
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	logger := zap.NewNop()

	syncService := service.NewSyncService(userStore, dirLoader, time.Hour, 7*24*time.Hour, m, logger)
	statsService := service.NewStatsService(userStore, feed, time.Hour, m, logger)

	mux := http.NewServeMux()
	NewAdminHandler(syncService, statsService, logger).Register(mux)

	return &adminFixture{mux: mux, userStore: userStore, dirLoader: dirLoader, feed: feed}
}

func (f *adminFixture) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestListUsersTriggersBootstrapSync(t *testing.T) {
	f := newAdminFixture(t)
	f.dirLoader.QueueFull(&loader.LoadResult{
		Users: []*model.CachedUser{
			{GraphID: "id-1", UserPrincipalName: "ana@contoso.com"},
			{GraphID: "id-2", UserPrincipalName: "bo@contoso.com"},
		},
		DeltaToken: "T1",
	}, nil)

	rec := f.do(http.MethodGet, "/v1/users")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, 1, f.dirLoader.FullCalls)
}

func TestGetUserByPrincipal(t *testing.T) {
	f := newAdminFixture(t)
	require.NoError(t, f.userStore.UpsertUser(context.Background(), &model.CachedUser{
		GraphID:           "id-1",
		UserPrincipalName: "ana@contoso.com",
		DisplayName:       "Ana Alves",
	}))

	rec := f.do(http.MethodGet, "/v1/users/ana@contoso.com")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Ana Alves", body["display_name"])

	rec = f.do(http.MethodGet, "/v1/users/ghost@contoso.com")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManualSyncReportsUpstreamFailure(t *testing.T) {
	f := newAdminFixture(t)
	f.dirLoader.QueueFull(nil, errors.New("directory unreachable"))

	rec := f.do(http.MethodPost, "/v1/sync")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	f.dirLoader.QueueFull(&loader.LoadResult{
		Users:      []*model.CachedUser{{GraphID: "id-1", UserPrincipalName: "ana@contoso.com"}},
		DeltaToken: "T1",
	}, nil)
	rec = f.do(http.MethodPost, "/v1/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, string(model.SyncStatusSuccess), body["last_status"])
}

func TestCacheClearEndpointReportsRemovedCount(t *testing.T) {
	f := newAdminFixture(t)
	require.NoError(t, f.userStore.UpsertUsers(context.Background(), []*model.CachedUser{
		{GraphID: "id-1", UserPrincipalName: "ana@contoso.com"},
		{GraphID: "id-2", UserPrincipalName: "bo@contoso.com"},
	}))

	rec := f.do(http.MethodPost, "/v1/cache/clear")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["removed"])
}

func TestStatsRefreshFreshVsForced(t *testing.T) {
	f := newAdminFixture(t)
	require.NoError(t, f.userStore.UpdateSyncState(context.Background(), &model.SyncState{
		LastStatsRefresh: time.Now(),
	}))

	rec := f.do(http.MethodPost, "/v1/stats/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fresh", decodeBody(t, rec)["result"])

	f.feed.Queue(&statsfeed.Outcome{Status: statsfeed.FeedEmpty})
	rec = f.do(http.MethodPost, "/v1/stats/refresh?force=true")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, string(statsfeed.FeedEmpty), body["feed_status"])
}

func TestStatusEndpointExposesSyncBookkeeping(t *testing.T) {
	f := newAdminFixture(t)
	f.dirLoader.QueueFull(&loader.LoadResult{
		Users:      []*model.CachedUser{{GraphID: "id-1", UserPrincipalName: "ana@contoso.com"}},
		DeltaToken: "T1",
	}, nil)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/v1/sync").Code)

	rec := f.do(http.MethodGet, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "T1", body["delta_token"])
	assert.Equal(t, float64(1), body["last_record_count"])
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAdminFixture(t)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodPost, "/v1/users").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/v1/sync").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/v1/cache/clear").Code)
}
