package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tigro/internal/domain"
	"tigro/internal/modules/optimization"
	"tigro/internal/modules/sizing"
	"tigro/internal/modules/strategy"
)

type stubDataSource struct {
	histories map[string][]domain.PricePoint
	prices    map[string]float64
	snapshot  domain.PortfolioSnapshot
}

func (f *stubDataSource) Universe(ctx context.Context) ([]string, error) {
	return []string{"AAPL", "MSFT", "BND"}, nil
}

func (f *stubDataSource) PriceHistory(ctx context.Context, symbols []string, days int) (map[string][]domain.PricePoint, error) {
	return f.histories, nil
}

func (f *stubDataSource) LatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	return f.prices, nil
}

func (f *stubDataSource) AnalystTargets(ctx context.Context, symbols []string) (map[string]domain.AnalystTarget, error) {
	return map[string]domain.AnalystTarget{}, nil
}

func (f *stubDataSource) Sentiment(ctx context.Context, symbols []string) (map[string]domain.SentimentSnapshot, error) {
	return map[string]domain.SentimentSnapshot{}, nil
}

func (f *stubDataSource) PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	return f.snapshot, nil
}

type stubRunStore struct {
	saved []*optimization.RunRecord
}

func (f *stubRunStore) SaveRun(ctx context.Context, record *optimization.RunRecord) error {
	f.saved = append(f.saved, record)
	return nil
}

func (f *stubRunStore) LatestRun(ctx context.Context) (*optimization.RunRecord, error) {
	if len(f.saved) == 0 {
		return nil, nil
	}
	return f.saved[len(f.saved)-1], nil
}

func priceWalk(start, drift, wobble float64, period, days int) []domain.PricePoint {
	points := make([]domain.PricePoint, days)
	price := start
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		move := drift
		if (i/period)%2 == 0 {
			move += wobble
		} else {
			move -= wobble
		}
		price *= 1 + move
		points[i] = domain.PricePoint{Date: base.AddDate(0, 0, i), Close: price}
	}
	return points
}

func testServer(t *testing.T) *Server {
	t.Helper()
	data := &stubDataSource{
		histories: map[string][]domain.PricePoint{
			"AAPL": priceWalk(150, 0.0006, 0.012, 1, 120),
			"MSFT": priceWalk(300, 0.0005, 0.009, 2, 120),
			"BND":  priceWalk(80, 0.0002, 0.003, 3, 120),
		},
		prices: map[string]float64{"AAPL": 180, "MSFT": 410, "BND": 82},
		snapshot: domain.PortfolioSnapshot{
			Positions: []domain.Position{
				{Symbol: "AAPL", Shares: 20, CostBasis: 150, CurrentPrice: 180},
			},
			Cash: 4000,
		},
	}
	log := zerolog.Nop()
	svc := optimization.NewService(
		optimization.DefaultSettings(),
		optimization.DefaultLookbackDays,
		strategy.NewAdjuster(10000, 1000, log),
		sizing.NewSizer(10000, 1000, log),
		data,
		&stubRunStore{},
		log,
	)
	return New(Config{Port: 0, Log: log, Service: svc})
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotContains(t, body, "last_run_error")
}

func TestLatestRunBeforeAnyRun(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/optimize/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecommendationsBeforeAnyRun(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/recommendations")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOptimizeThenFetchResults(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/optimize")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var record optimization.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.NotEmpty(t, record.RunID)
	require.NotNil(t, record.Optimization)
	assert.NotEmpty(t, record.Optimization.Weights)
	require.NotNil(t, record.Trades)

	latest := doRequest(t, s, http.MethodGet, "/api/optimize/latest")
	require.Equal(t, http.StatusOK, latest.Code)

	recs := doRequest(t, s, http.MethodGet, "/api/recommendations")
	require.Equal(t, http.StatusOK, recs.Code)

	var trades sizing.TradePlan
	require.NoError(t, json.Unmarshal(recs.Body.Bytes(), &trades))
	assert.NotEmpty(t, trades.Recommendations)
}

func TestFrontierEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/optimize/frontier?points=5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Points []optimization.FrontierPoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Points)
}

func TestFrontierRejectsBadPoints(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/optimize/frontier?points=one")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/optimize/frontier?points=1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
