package sizing

import (
	"fmt"
	"strings"

	"tigro/internal/domain"
)

// Rationale tier thresholds.
const (
	WinnerReturn = 0.20
	SolidReturn  = 0.05
	StableReturn = -0.05

	HighVolatility     = 0.30
	ModerateVolatility = 0.20

	PositiveSentiment = 0.10
	NegativeSentiment = -0.10
)

// rationale builds the human-readable explanation attached to a
// recommendation: a performance tier, a volatility tier and, when known, a
// sentiment or trend note.
func rationale(position domain.Position, volatility float64, sentiment domain.SentimentSnapshot) string {
	var parts []string

	if position.Shares > 0 {
		ret := position.UnrealizedReturn()
		switch {
		case ret > WinnerReturn:
			parts = append(parts, fmt.Sprintf("strong winner (+%.1f%%)", ret*100))
		case ret > SolidReturn:
			parts = append(parts, fmt.Sprintf("solid performer (+%.1f%%)", ret*100))
		case ret > StableReturn:
			parts = append(parts, "stable position")
		default:
			parts = append(parts, fmt.Sprintf("underperformer (%.1f%%)", ret*100))
		}
	} else {
		parts = append(parts, "new position")
	}

	switch {
	case volatility > HighVolatility:
		parts = append(parts, "high volatility")
	case volatility > ModerateVolatility:
		parts = append(parts, "moderate volatility")
	}

	switch {
	case sentiment.Score > PositiveSentiment:
		parts = append(parts, "positive sentiment")
	case sentiment.Symbol != "" && sentiment.Score < NegativeSentiment:
		parts = append(parts, "negative sentiment")
	case sentiment.Trend != "":
		parts = append(parts, fmt.Sprintf("%s trend", sentiment.Trend))
	}

	return strings.Join(parts, ", ")
}
