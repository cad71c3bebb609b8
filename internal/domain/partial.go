package domain

// PartialRecord is one provider's normalized answer for a token.
// Adapters produce it; the reconciler merges a set of them into a
// canonical Token. Pointer fields distinguish "provider did not answer"
// (nil) from a definite zero value.
type PartialRecord struct {
	Provider string // provider ID that produced the record
	Address  string

	Name     *string
	Symbol   *string
	Decimals *int
	Supply   *float64

	HolderCount *int
	IsVerified  *bool // nil means the provider gave no definite answer

	TopHolders   []HolderSnapshot
	Transactions []TransactionRecord

	// Price carries the provider's current market observation, if any.
	Price *PriceSample

	// Metadata is the provider's raw extra payload, stored under the
	// provider's namespace in the canonical token.
	Metadata map[string]any

	FetchedAt int64 // Unix timestamp in milliseconds
}

// HasCoreFields reports whether the record carries at least one
// canonical field worth merging.
func (p *PartialRecord) HasCoreFields() bool {
	return p.Name != nil || p.Symbol != nil || p.Decimals != nil ||
		p.Supply != nil || p.HolderCount != nil || p.IsVerified != nil ||
		len(p.TopHolders) > 0 || p.Price != nil
}
