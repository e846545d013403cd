package optimization

import "fmt"

// InvalidInputError reports inputs the engine cannot work with: dimension
// mismatches, unknown symbols, malformed weights.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// InsufficientDataError reports that too few aligned observations remain to
// estimate returns or risk.
type InsufficientDataError struct {
	Got    int
	Needed int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d aligned observations, need at least %d", e.Got, e.Needed)
}

// DegenerateRiskError reports a covariance matrix that is unusable even
// after diagonal regularization.
type DegenerateRiskError struct {
	Reason string
}

func (e *DegenerateRiskError) Error() string {
	return fmt.Sprintf("degenerate risk model: %s", e.Reason)
}

// NonConvergenceError reports that a strategy (or the whole fallback chain)
// failed to produce an accepted solution.
type NonConvergenceError struct {
	Strategy string
	Status   string
}

func (e *NonConvergenceError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("optimization did not converge: strategy=%s", e.Strategy)
	}
	return fmt.Sprintf("optimization did not converge: strategy=%s status=%s", e.Strategy, e.Status)
}
