package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stratlab/internal/dataset"
	"stratlab/internal/fetch"
	"stratlab/internal/ledger"
	"stratlab/internal/market"
	"stratlab/internal/market/synthetic"
	"stratlab/internal/risk"
	"stratlab/internal/sim"
	"stratlab/internal/suite"
	"stratlab/internal/validate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walkSource struct{}

func (walkSource) Name() string          { return "walk" }
func (walkSource) Schema() market.Schema { return market.SchemaOHLCV }

func (walkSource) Fetch(ctx context.Context, req fetch.Request) (market.Candles, error) {
	step := req.Interval.Millis()
	n := int((req.End - req.Start) / step)
	if n > req.Limit {
		n = req.Limit
	}
	return synthetic.Walk(n, synthetic.Config{
		Seed: 1, StartPrice: 45000, Volatility: 0.02,
		StartTS: req.Start, IntervalMs: step,
	}), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cache, err := dataset.Open(t.TempDir())
	require.NoError(t, err)
	fetcher := fetch.NewFetcher(walkSource{}, cache, fetch.Config{RateLimitPerMin: 600000})
	runner := suite.NewRunner(fetcher, nil, suite.Params{
		Ledger: ledger.Config{InitialCapital: 10000, PositionSizePct: 0.02},
		Sim:    sim.Config{CloseOnFinish: true},
		Risk:   risk.DefaultThresholds(),
		Policy: validate.DefaultPolicy(),
	})
	iv, err := market.ParseInterval("5m")
	require.NoError(t, err)
	svc := suite.NewService(runner, iv)
	srv, err := NewServer(Config{Svc: svc, Cache: cache})
	require.NoError(t, err)
	return srv
}

func TestSubmitAndPollJob(t *testing.T) {
	srv := newTestServer(t)

	body := `{"symbols":["BTCUSDT"],"periods":[{"start":"2025-01-01","end":"2025-01-02"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/suite/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var accepted struct {
		Job suite.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.Job.ID)

	deadline := time.Now().Add(30 * time.Second)
	for {
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/suite/jobs/"+accepted.Job.ID, nil))
		require.Equal(t, http.StatusOK, w.Code)
		var polled struct {
			Job suite.Job `json:"job"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &polled))
		if polled.Job.Status == suite.JobStatusDone {
			require.Len(t, polled.Job.Results, 1)
			assert.Equal(t, suite.RunStatusDone, polled.Job.Results[0].Status)
			break
		}
		require.True(t, time.Now().Before(deadline), "任务未在期限内完成")
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSubmitRejectsInvalidBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/suite/jobs", strings.NewReader(`{"symbols":[]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobNotFound(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/suite/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunsUnavailableWithoutStore(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/suite/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCacheListEndpoint(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/suite/cache", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "entries")
}
