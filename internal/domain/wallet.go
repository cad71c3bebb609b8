package domain

// WalletAnalysis is a derived aggregate over one wallet's activity,
// rebuilt on demand rather than incrementally maintained. The deployer
// score reads TokenWinRate from the analysis of a token's deployer.
type WalletAnalysis struct {
	WalletAddress    string
	TokenCount       int
	TotalValueUSD    float64
	TransactionCount int
	FirstTransaction int64 // Unix timestamp in milliseconds, 0 if none
	LastTransaction  int64

	// TokenWinRate is the fraction (0..1) of the wallet's prior tokens
	// whose price rose after launch. Negative means unknown history.
	TokenWinRate float64

	// Payload holds free-form analysis details.
	Payload map[string]any

	CreatedAt int64
}
