package domain

// Token is the canonical reconciled record for one tracked token.
// Address is the sole identity key; every other field is refreshed on
// each successful reconcile and never rolled back to an older fetch.
// Corresponds to the tokens table in PostgreSQL.
type Token struct {
	Address     string // base58 mint address, PRIMARY KEY
	Name        string
	Symbol      string
	Decimals    int
	TotalSupply float64
	HolderCount int
	IsVerified  bool

	// Metadata holds provider-tagged namespaces, e.g.
	// {"helius": {...}, "birdeye": {...}}. Shallow-merged on reconcile.
	Metadata map[string]map[string]any

	// Partial is true when fewer than all configured providers
	// contributed to this snapshot. Scoring discounts confidence for it.
	Partial bool

	// Providers lists the provider IDs that contributed, in priority order.
	Providers []string

	CreatedAt int64 // Unix timestamp in milliseconds
	UpdatedAt int64 // last successful reconcile (ms)
}
