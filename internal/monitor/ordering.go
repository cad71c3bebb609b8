package monitor

import (
	"sort"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// SortSamples orders a batch by (token, source, timestamp) so that
// every per-source stream is appended in order.
func SortSamples(samples []*domain.PriceSample) {
	sort.Slice(samples, func(i, j int) bool {
		a, b := samples[i], samples[j]
		if a.TokenAddress != b.TokenAddress {
			return a.TokenAddress < b.TokenAddress
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Timestamp < b.Timestamp
	})
}

// ValidateSampleOrder checks a sorted batch for samples that do not
// advance their (token, source) stream. Returns ErrOutOfOrder so the
// batch is rejected before any store sees it.
func ValidateSampleOrder(samples []*domain.PriceSample) error {
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if prev.TokenAddress == cur.TokenAddress &&
			prev.Source == cur.Source &&
			cur.Timestamp <= prev.Timestamp {
			return storage.ErrOutOfOrder
		}
	}
	return nil
}
