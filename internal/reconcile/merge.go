package reconcile

import (
	"sort"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// Merge folds provider records into one canonical bundle. Records must
// be ordered by provider priority, highest first; merging is
// deterministic for a given input order.
//
// Field strategies:
//   - scalar fields (name, symbol, decimals, supply, holder count):
//     highest-priority provider that answered wins
//   - is_verified: OR across every provider that gave a definite answer
//   - metadata: namespaced per provider, never merged across namespaces
//   - holders: the highest-priority provider that returned any wins
//   - transactions: union across providers, deduplicated by tx hash
//   - price samples: one per provider that observed a price
func Merge(address string, records []*domain.PartialRecord, totalProviders int, now int64) *storage.Canonical {
	token := &domain.Token{
		Address:   address,
		Metadata:  make(map[string]map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if name, ok := firstAnswer(records, func(r *domain.PartialRecord) *string { return r.Name }); ok {
		token.Name = name
	}
	if symbol, ok := firstAnswer(records, func(r *domain.PartialRecord) *string { return r.Symbol }); ok {
		token.Symbol = symbol
	}
	if decimals, ok := firstAnswer(records, func(r *domain.PartialRecord) *int { return r.Decimals }); ok {
		token.Decimals = decimals
	}
	if supply, ok := firstAnswer(records, func(r *domain.PartialRecord) *float64 { return r.Supply }); ok {
		token.TotalSupply = supply
	}
	if holderCount, ok := firstAnswer(records, func(r *domain.PartialRecord) *int { return r.HolderCount }); ok {
		token.HolderCount = holderCount
	}
	for _, r := range records {
		if r.IsVerified != nil && *r.IsVerified {
			token.IsVerified = true
			break
		}
	}

	c := &storage.Canonical{Token: token}
	seenTx := make(map[string]struct{})

	for _, r := range records {
		token.Providers = append(token.Providers, r.Provider)
		if len(r.Metadata) > 0 {
			ns := make(map[string]any, len(r.Metadata))
			for k, v := range r.Metadata {
				ns[k] = v
			}
			token.Metadata[r.Provider] = ns
		}

		if c.Holders == nil && len(r.TopHolders) > 0 {
			for i := range r.TopHolders {
				holder := r.TopHolders[i]
				holder.TokenAddress = address
				c.Holders = append(c.Holders, &holder)
			}
		}

		for i := range r.Transactions {
			tx := r.Transactions[i]
			if _, ok := seenTx[tx.TxHash]; ok {
				continue
			}
			seenTx[tx.TxHash] = struct{}{}
			tx.TokenAddress = address
			c.Transactions = append(c.Transactions, &tx)
		}

		if r.Price != nil {
			sample := *r.Price
			sample.TokenAddress = address
			sample.Source = r.Provider
			c.Samples = append(c.Samples, &sample)
		}
	}

	sort.Slice(c.Transactions, func(i, j int) bool {
		if c.Transactions[i].Timestamp != c.Transactions[j].Timestamp {
			return c.Transactions[i].Timestamp < c.Transactions[j].Timestamp
		}
		return c.Transactions[i].TxHash < c.Transactions[j].TxHash
	})

	token.Partial = len(records) < totalProviders
	return c
}

// firstAnswer returns the first non-nil value of a pointer field in
// priority order.
func firstAnswer[T any](records []*domain.PartialRecord, get func(*domain.PartialRecord) *T) (T, bool) {
	for _, r := range records {
		if v := get(r); v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}
