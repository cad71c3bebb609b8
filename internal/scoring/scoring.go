package scoring

import (
	"math"
	"sort"

	"tokenwatch/internal/domain"
)

// Weights configures the composite confidence score. The component
// weights should sum to 1; MissingProviderPenalty is subtracted from
// the completeness component per provider that did not answer.
type Weights struct {
	Distribution           float64
	Deployer               float64
	HolderCount            float64
	Completeness           float64
	MissingProviderPenalty float64
	TopK                   int
}

// Input is everything one scoring pass reads. Scoring is pure: same
// input, same scores.
type Input struct {
	Token   *domain.Token
	Holders []*domain.HolderSnapshot

	// DeployerWinRate is the deployer wallet's historical token win
	// rate in [0, 1]. Negative means no history is known.
	DeployerWinRate float64

	// TotalProviders is how many providers were configured for the
	// cycle that produced the token.
	TotalProviders int
}

// Score computes all composite scores for one snapshot.
func Score(in Input, w Weights, now int64) domain.Scores {
	dist := DistributionScore(in.Holders, in.Token.TotalSupply, w.TopK)
	deployer := DeployerScore(in.DeployerWinRate)
	confidence := confidenceScore(in, w, dist, deployer)

	return domain.Scores{
		TokenAddress: in.Token.Address,
		Deployer:     deployer,
		Distribution: dist,
		Confidence:   confidence,
		ComputedAt:   now,
	}
}

// DistributionScore rates how evenly a token is held, 0 (fully
// concentrated or unknown) to 100 (perfectly spread). It averages a
// top-K concentration penalty with the Gini coefficient of the known
// holder balances.
func DistributionScore(holders []*domain.HolderSnapshot, totalSupply float64, topK int) float64 {
	if len(holders) == 0 || totalSupply <= 0 {
		return 0
	}
	if topK <= 0 {
		topK = 10
	}

	balances := make([]float64, 0, len(holders))
	for _, h := range holders {
		balances = append(balances, h.Balance)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(balances)))

	topShare := 0.0
	for i, b := range balances {
		if i >= topK {
			break
		}
		topShare += b
	}
	topShare /= totalSupply
	topShare = clamp01(topShare)

	gini := giniCoefficient(balances)

	return clamp(100 * (1 - 0.5*topShare - 0.5*gini))
}

// DeployerScore rates the deployer wallet's track record. An unknown
// history maps to a neutral 50.
func DeployerScore(winRate float64) float64 {
	if winRate < 0 {
		return 50
	}
	return clamp(winRate * 100)
}

// confidenceScore combines the components with holder-count depth and
// data completeness.
func confidenceScore(in Input, w Weights, dist, deployer float64) float64 {
	holderDepth := holderCountScore(in.Token.HolderCount)
	completeness := completenessScore(in, w.MissingProviderPenalty)

	score := w.Distribution*dist +
		w.Deployer*deployer +
		w.HolderCount*holderDepth +
		w.Completeness*completeness
	return clamp(score)
}

// holderCountScore maps holder count onto [0, 100] on a log scale;
// 100k holders saturate it.
func holderCountScore(count int) float64 {
	if count <= 0 {
		return 0
	}
	return clamp(math.Log10(float64(count)+1) / 5 * 100)
}

// completenessScore starts at 100 and loses the configured penalty per
// provider that did not contribute to the snapshot.
func completenessScore(in Input, penalty float64) float64 {
	if in.TotalProviders <= 0 {
		return 0
	}
	missing := in.TotalProviders - len(in.Token.Providers)
	if missing < 0 {
		missing = 0
	}
	return clamp(100 - penalty*float64(missing))
}

// giniCoefficient computes the Gini coefficient of the balances,
// 0 (equal) to 1 (one holder owns everything). Input must be sorted
// descending.
func giniCoefficient(sortedDesc []float64) float64 {
	n := len(sortedDesc)
	if n == 0 {
		return 1
	}

	total := 0.0
	for _, b := range sortedDesc {
		total += b
	}
	if total <= 0 {
		return 1
	}

	// Ascending order for the standard formula.
	weighted := 0.0
	for i := n - 1; i >= 0; i-- {
		rank := float64(n - i) // 1-based ascending rank
		weighted += rank * sortedDesc[i]
	}

	g := (2*weighted)/(float64(n)*total) - float64(n+1)/float64(n)
	return clamp01(g)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
