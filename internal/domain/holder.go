package domain

// HolderSnapshot is the latest known position of one wallet in one token.
// Percentages across all holders of a token sum to <= 100 within floating
// tolerance; Balance is never negative.
type HolderSnapshot struct {
	TokenAddress  string
	WalletAddress string
	Balance       float64
	Percentage    float64 // share of total supply, 0..100
	FirstSeen     int64   // Unix timestamp in milliseconds
	LastUpdated   int64
}
