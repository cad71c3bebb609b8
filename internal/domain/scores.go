package domain

// Scores holds the derived composite scores for one token snapshot.
// All values are in [0, 100].
type Scores struct {
	TokenAddress string
	Deployer     float64
	Distribution float64
	Confidence   float64
	ComputedAt   int64 // Unix timestamp in milliseconds
}

// ScoredSnapshot pairs a canonical token with its scores and the price
// observation the alert evaluator reads metric values from.
type ScoredSnapshot struct {
	Token  *Token
	Scores Scores

	// LatestPrice is the newest price sample across sources, nil when no
	// provider returned one this cycle.
	LatestPrice *PriceSample
}

// Metric extracts the metric value for an alert rule from the snapshot.
// The second return is false when the metric is unavailable, in which
// case the rule is skipped for the cycle.
func (s *ScoredSnapshot) Metric(metric MetricType) (float64, bool) {
	switch metric {
	case MetricPrice:
		if s.LatestPrice == nil {
			return 0, false
		}
		return s.LatestPrice.PriceUSD, true
	case MetricMarketCap:
		if s.LatestPrice == nil {
			return 0, false
		}
		return s.LatestPrice.MarketCap, true
	case MetricConfidence:
		return s.Scores.Confidence, true
	case MetricHolders:
		if s.Token == nil {
			return 0, false
		}
		return float64(s.Token.HolderCount), true
	default:
		return 0, false
	}
}
