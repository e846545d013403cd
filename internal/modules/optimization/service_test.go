package optimization

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tigro/internal/domain"
	"tigro/internal/modules/sizing"
	"tigro/internal/modules/strategy"
)

// fakeDataSource serves a small three-asset universe from memory.
type fakeDataSource struct {
	histories map[string][]domain.PricePoint
	prices    map[string]float64
	snapshot  domain.PortfolioSnapshot
}

func (f *fakeDataSource) Universe(ctx context.Context) ([]string, error) {
	return []string{"AAPL", "MSFT", "BND"}, nil
}

func (f *fakeDataSource) PriceHistory(ctx context.Context, symbols []string, days int) (map[string][]domain.PricePoint, error) {
	return f.histories, nil
}

func (f *fakeDataSource) LatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	return f.prices, nil
}

func (f *fakeDataSource) AnalystTargets(ctx context.Context, symbols []string) (map[string]domain.AnalystTarget, error) {
	return map[string]domain.AnalystTarget{
		"AAPL": {Symbol: "AAPL", TargetPrice: f.prices["AAPL"] * 1.15},
	}, nil
}

func (f *fakeDataSource) Sentiment(ctx context.Context, symbols []string) (map[string]domain.SentimentSnapshot, error) {
	return map[string]domain.SentimentSnapshot{
		"AAPL": {Symbol: "AAPL", Score: 0.3},
		"MSFT": {Symbol: "MSFT", Score: -0.1},
	}, nil
}

func (f *fakeDataSource) PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	return f.snapshot, nil
}

type fakeRunStore struct {
	saved []*RunRecord
}

func (f *fakeRunStore) SaveRun(ctx context.Context, record *RunRecord) error {
	f.saved = append(f.saved, record)
	return nil
}

func (f *fakeRunStore) LatestRun(ctx context.Context) (*RunRecord, error) {
	if len(f.saved) == 0 {
		return nil, nil
	}
	return f.saved[len(f.saved)-1], nil
}

// wavyHistory produces a gently oscillating upward price walk. Different
// periods keep the assets imperfectly correlated so the sample covariance is
// well conditioned.
func wavyHistory(start, drift, wobble float64, period, days int) []domain.PricePoint {
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

func newPipelineFixture() (*Service, *fakeRunStore) {
	data := &fakeDataSource{
		histories: map[string][]domain.PricePoint{
			"AAPL": wavyHistory(150, 0.0006, 0.012, 1, 120),
			"MSFT": wavyHistory(300, 0.0005, 0.009, 2, 120),
			"BND":  wavyHistory(80, 0.0002, 0.003, 3, 120),
		},
		prices: map[string]float64{"AAPL": 180, "MSFT": 410, "BND": 82},
		snapshot: domain.PortfolioSnapshot{
			Positions: []domain.Position{
				{Symbol: "AAPL", Shares: 20, CostBasis: 150, CurrentPrice: 180},
				{Symbol: "MSFT", Shares: 5, CostBasis: 420, CurrentPrice: 410},
			},
			Cash: 4000,
		},
	}
	store := &fakeRunStore{}
	log := zerolog.Nop()
	svc := NewService(
		DefaultSettings(),
		DefaultLookbackDays,
		strategy.NewAdjuster(10000, 1000, log),
		sizing.NewSizer(10000, 1000, log),
		data,
		store,
		log,
	)
	return svc, store
}

func TestRunOnceProducesFullRecord(t *testing.T) {
	svc, store := newPipelineFixture()

	record, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.NotEmpty(t, record.RunID)
	require.NotNil(t, record.Optimization)
	require.NotNil(t, record.Adjustment)
	require.NotNil(t, record.Trades)

	// With cash on hand the investable fraction exceeds 1, so the weights
	// sum strictly above fully invested.
	sum := 0.0
	for _, w := range record.Optimization.Weights {
		sum += w
	}
	assert.Greater(t, sum, 1.0)

	assert.NotEmpty(t, record.Trades.Recommendations)
	require.Len(t, store.saved, 1)
	assert.Equal(t, record.RunID, store.saved[0].RunID)
}

func TestLatestRunPrefersMemory(t *testing.T) {
	svc, _ := newPipelineFixture()
	ctx := context.Background()

	first, err := svc.LatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, first)

	record, err := svc.RunOnce(ctx)
	require.NoError(t, err)

	latest, err := svc.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, record.RunID, latest.RunID)
	assert.NoError(t, svc.LastError())
}

func TestFrontierFromPipelineData(t *testing.T) {
	svc, _ := newPipelineFixture()

	frontier, err := svc.Frontier(context.Background(), 8)
	require.NoError(t, err)
	assert.NotEmpty(t, frontier)
}

func TestRunOnceFailsOnEmptyUniverse(t *testing.T) {
	log := zerolog.Nop()
	svc := NewService(
		DefaultSettings(), 0,
		strategy.NewAdjuster(0, 0, log),
		sizing.NewSizer(0, 0, log),
		&emptyDataSource{}, &fakeRunStore{}, log,
	)

	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)

	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
	assert.Error(t, svc.LastError())
}

type emptyDataSource struct{}

func (e *emptyDataSource) Universe(ctx context.Context) ([]string, error) { return nil, nil }
func (e *emptyDataSource) PriceHistory(ctx context.Context, symbols []string, days int) (map[string][]domain.PricePoint, error) {
	return nil, nil
}
func (e *emptyDataSource) LatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	return nil, nil
}
func (e *emptyDataSource) AnalystTargets(ctx context.Context, symbols []string) (map[string]domain.AnalystTarget, error) {
	return nil, nil
}
func (e *emptyDataSource) Sentiment(ctx context.Context, symbols []string) (map[string]domain.SentimentSnapshot, error) {
	return nil, nil
}
func (e *emptyDataSource) PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	return domain.PortfolioSnapshot{}, nil
}
