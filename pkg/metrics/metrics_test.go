package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/paysync/paysync/pkg/streams"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStreams struct {
	depth   int64
	pending int64
	err     error
}

func (m *mockStreams) Len(ctx context.Context, stream string) (int64, error) {
	return m.depth, m.err
}

func (m *mockStreams) Pending(ctx context.Context, stream, group string) (int64, error) {
	return m.pending, m.err
}

func mockAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func TestNewMetricsAPI(t *testing.T) {
	api, err := NewMetricsAPI(Opts{Streams: &mockStreams{}, Stream: "SCHEDULER_STREAM", Group: "SCHEDULER_GROUP"})
	require.NoError(t, err)
	assert.NotNil(t, api.Router)
	assert.Contains(t, api.depthGauge.Desc().String(), "paysync_scheduler_stream_depth")

	api, err = NewMetricsAPI(Opts{})
	assert.Error(t, err)
	assert.Nil(t, api)
}

func TestMetricsAPI_handleMetrics(t *testing.T) {
	tests := []struct {
		name             string
		streams          StreamStats
		authMiddleware   func(http.Handler) http.Handler
		authorization    string
		wantStatus       int
		wantBodyContains []string
	}{
		{
			name:       "successful metrics response",
			streams:    &mockStreams{depth: 12, pending: 3},
			wantStatus: http.StatusOK,
			wantBodyContains: []string{
				"# TYPE paysync_scheduler_stream_depth gauge",
				`paysync_scheduler_stream_depth{stream="SCHEDULER_STREAM"} 12`,
				`paysync_scheduler_stream_pending{group="SCHEDULER_GROUP",stream="SCHEDULER_STREAM"} 3`,
			},
		},
		{
			name:             "redis error",
			streams:          &mockStreams{err: errors.New("redis connection failed")},
			wantStatus:       http.StatusInternalServerError,
			wantBodyContains: []string{"Failed to get stream depth"},
		},
		{
			name:             "auth middleware blocks request",
			streams:          &mockStreams{},
			authMiddleware:   mockAuthMiddleware,
			wantStatus:       http.StatusUnauthorized,
			wantBodyContains: []string{"Unauthorized"},
		},
		{
			name:             "auth middleware allows request",
			streams:          &mockStreams{depth: 1},
			authMiddleware:   mockAuthMiddleware,
			authorization:    "Bearer valid-token",
			wantStatus:       http.StatusOK,
			wantBodyContains: []string{`paysync_scheduler_stream_depth{stream="SCHEDULER_STREAM"} 1`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, err := NewMetricsAPI(Opts{
				Streams:        tt.streams,
				Stream:         "SCHEDULER_STREAM",
				Group:          "SCHEDULER_GROUP",
				AuthMiddleware: tt.authMiddleware,
			})
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			w := httptest.NewRecorder()
			api.Router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			for _, expected := range tt.wantBodyContains {
				assert.Contains(t, w.Body.String(), expected)
			}
		})
	}
}

func TestMetricsAPIReadsRedis(t *testing.T) {
	ctx := context.Background()
	r := miniredis.RunT(t)
	rc, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{r.Addr()}, DisableCache: true, ForceSingleClient: true})
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	s := streams.New(rc)
	require.NoError(t, s.EnsureGroup(ctx, "SCHEDULER_STREAM", "SCHEDULER_GROUP"))
	for range 3 {
		_, err := s.Append(ctx, "SCHEDULER_STREAM", map[string]string{"id": "b"})
		require.NoError(t, err)
	}
	_, err = s.ReadGroup(ctx, streams.ReadOpts{Stream: "SCHEDULER_STREAM", Group: "SCHEDULER_GROUP", Consumer: "c1", Count: 1})
	require.NoError(t, err)

	api, err := NewMetricsAPI(Opts{Streams: s, Stream: "SCHEDULER_STREAM", Group: "SCHEDULER_GROUP"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	api.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `paysync_scheduler_stream_depth{stream="SCHEDULER_STREAM"} 3`)
	assert.Contains(t, w.Body.String(), `paysync_scheduler_stream_pending{group="SCHEDULER_GROUP",stream="SCHEDULER_STREAM"} 1`)
}
