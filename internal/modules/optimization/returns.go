package optimization

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"tigro/internal/domain"
	"tigro/pkg/formulas"
)

// Estimation guards.
const (
	// Geometric annualization is replaced by the arithmetic mean when the
	// result falls outside these bounds or is not finite.
	GeometricReturnMin = -0.95
	GeometricReturnMax = 5.0

	// Clamps applied before blending composite expected returns.
	AnalystUpsideClamp       = 0.50
	SentimentScoreScale      = 0.05
	SentimentAdjustmentClamp = 0.05

	// MinObservations is the minimum number of aligned return rows.
	MinObservations = 2
)

// Estimator turns raw price history and per-symbol signals into the inputs
// of a mean-variance solve: an aligned returns matrix, annualized expected
// returns and an annualized covariance matrix.
type Estimator struct {
	settings Settings
	log      zerolog.Logger
}

// NewEstimator creates a new returns estimator.
func NewEstimator(settings Settings, log zerolog.Logger) *Estimator {
	return &Estimator{
		settings: settings,
		log:      log.With().Str("component", "returns").Logger(),
	}
}

// BuildReturnsMatrix aligns daily histories by date and converts them to a
// returns matrix with one row per observation and one column per symbol, in
// the order given. Dates missing for any symbol are dropped for all symbols.
func (e *Estimator) BuildReturnsMatrix(histories map[string][]domain.PricePoint, symbols []string) (*mat.Dense, error) {
	if len(symbols) == 0 {
		return nil, &InvalidInputError{Reason: "no symbols provided"}
	}

	closesByDate := make(map[string]map[time.Time]float64, len(symbols))
	for _, symbol := range symbols {
		history, ok := histories[symbol]
		if !ok || len(history) == 0 {
			return nil, &InsufficientDataError{Got: 0, Needed: MinObservations}
		}
		byDate := make(map[time.Time]float64, len(history))
		for _, p := range history {
			byDate[p.Date.Truncate(24*time.Hour)] = p.Close
		}
		closesByDate[symbol] = byDate
	}

	// Dates present for every symbol.
	var aligned []time.Time
	for date := range closesByDate[symbols[0]] {
		present := true
		for _, symbol := range symbols[1:] {
			if _, ok := closesByDate[symbol][date]; !ok {
				present = false
				break
			}
		}
		if present {
			aligned = append(aligned, date)
		}
	}
	sort.Slice(aligned, func(i, j int) bool { return aligned[i].Before(aligned[j]) })

	rows := len(aligned) - 1
	if rows < MinObservations {
		return nil, &InsufficientDataError{Got: max(rows, 0), Needed: MinObservations}
	}

	e.log.Debug().
		Int("symbols", len(symbols)).
		Int("aligned_dates", len(aligned)).
		Int("return_rows", rows).
		Msg("Built aligned returns matrix")

	matrix := mat.NewDense(rows, len(symbols), nil)
	for j, symbol := range symbols {
		prev := closesByDate[symbol][aligned[0]]
		for i := 1; i < len(aligned); i++ {
			cur := closesByDate[symbol][aligned[i]]
			r := 0.0
			if prev != 0 {
				r = (cur - prev) / prev
			}
			matrix.Set(i-1, j, r)
			prev = cur
		}
	}
	return matrix, nil
}

// AnnualizedMeanReturns computes per-asset annualized returns from the
// aligned matrix. Geometric compounding is preferred; columns where it
// degenerates fall back to the annualized arithmetic mean.
func (e *Estimator) AnnualizedMeanReturns(matrix *mat.Dense) []float64 {
	rows, cols := matrix.Dims()
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		column := mat.Col(nil, j, matrix)
		geometric := formulas.AnnualizedReturn(column)
		if !math.IsInf(geometric, 0) && !math.IsNaN(geometric) &&
			geometric >= GeometricReturnMin && geometric <= GeometricReturnMax {
			out[j] = geometric
			continue
		}
		arithmetic := formulas.Mean(column) * formulas.TradingDaysPerYear
		e.log.Warn().
			Int("column", j).
			Int("observations", rows).
			Float64("geometric", geometric).
			Float64("arithmetic", arithmetic).
			Msg("Geometric annualization degenerate, using arithmetic mean")
		out[j] = arithmetic
	}
	return out
}

// AnnualizedCovariance computes the annualized sample covariance of the
// aligned returns matrix. A matrix with a negative minimum eigenvalue is
// repaired by inflating the diagonal; an irreparable matrix is rejected.
func (e *Estimator) AnnualizedCovariance(matrix *mat.Dense) (*mat.SymDense, error) {
	rows, cols := matrix.Dims()
	if rows < MinObservations {
		return nil, &InsufficientDataError{Got: rows, Needed: MinObservations}
	}

	cov := mat.NewSymDense(cols, nil)
	stat.CovarianceMatrix(cov, matrix, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			cov.SetSym(i, j, cov.At(i, j)*formulas.TradingDaysPerYear)
		}
	}

	minEig, err := minEigenvalue(cov)
	if err != nil {
		return nil, err
	}
	if minEig < 0 {
		// Shift the spectrum up past zero.
		shift := math.Max(math.Abs(minEig)*1.1, 1e-6)
		for i := 0; i < cols; i++ {
			cov.SetSym(i, i, cov.At(i, i)+shift)
		}
		e.log.Warn().
			Float64("min_eigenvalue", minEig).
			Float64("diagonal_shift", shift).
			Msg("Covariance matrix not PSD, regularized diagonal")

		minEig, err = minEigenvalue(cov)
		if err != nil {
			return nil, err
		}
		if minEig < -1e-10 {
			return nil, &DegenerateRiskError{Reason: "covariance remains non-PSD after regularization"}
		}
	}
	return cov, nil
}

// CompositeExpectedReturns blends historical annualized returns with analyst
// upside and sentiment:
//
//	composite = 0.8*(0.7*hist + 0.3*clamp(upside)) + 0.2*clamp(sentiment*0.05)
//
// The upside blend only applies when an analyst target and a positive price
// exist; otherwise the financial component is the historical return alone.
// Missing sentiment contributes zero adjustment. Blend weights come from
// Settings.
func (e *Estimator) CompositeExpectedReturns(
	histReturns []float64,
	symbols []string,
	prices map[string]float64,
	targets map[string]domain.AnalystTarget,
	sentiment map[string]domain.SentimentSnapshot,
) ([]float64, error) {
	if len(histReturns) != len(symbols) {
		return nil, &InvalidInputError{Reason: "historical returns do not match symbols"}
	}

	out := make([]float64, len(symbols))
	for i, symbol := range symbols {
		financial := histReturns[i]
		upside := 0.0
		if target, ok := targets[symbol]; ok {
			if price, ok := prices[symbol]; ok && price > 0 {
				upside = clamp(target.TargetPrice/price-1, -AnalystUpsideClamp, AnalystUpsideClamp)
				financial = e.settings.HistWeight*histReturns[i] + e.settings.AnalystWeight*upside
			}
		}

		adjustment := 0.0
		if s, ok := sentiment[symbol]; ok {
			adjustment = clamp(s.Score*SentimentScoreScale, -SentimentAdjustmentClamp, SentimentAdjustmentClamp)
		}

		out[i] = e.settings.FinancialWeight*financial + e.settings.SentimentWeight*adjustment

		e.log.Debug().
			Str("symbol", symbol).
			Float64("historical", histReturns[i]).
			Float64("analyst_upside", upside).
			Float64("sentiment_adjustment", adjustment).
			Float64("composite", out[i]).
			Msg("Composite expected return")
	}
	return out, nil
}

func minEigenvalue(sym *mat.SymDense) (float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return 0, &DegenerateRiskError{Reason: "eigendecomposition failed"}
	}
	values := eig.Values(nil)
	// EigenSym returns values in ascending order.
	return values[0], nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
