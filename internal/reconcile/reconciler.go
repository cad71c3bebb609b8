package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/governor"
	"tokenwatch/internal/logging"
	"tokenwatch/internal/observability"
	"tokenwatch/internal/provider"
	"tokenwatch/internal/storage"
)

// ErrNoData is returned when every provider failed for a token and
// there is nothing to merge.
var ErrNoData = errors.New("no provider returned data")

// Reconciler fans one token out to all configured providers through
// the governor, waits for the round to finish within its deadline, and
// merges whatever came back into a canonical bundle.
type Reconciler struct {
	adapters []provider.Adapter // priority order, highest first
	gov      *governor.Governor
	deadline time.Duration
	log      zerolog.Logger
}

// New creates a reconciler. Adapter order defines field precedence.
func New(adapters []provider.Adapter, gov *governor.Governor, deadline time.Duration) *Reconciler {
	return &Reconciler{
		adapters: adapters,
		gov:      gov,
		deadline: deadline,
		log:      logging.WithComponent("reconciler"),
	}
}

// Reconcile fetches one token from every provider concurrently and
// merges the answers. A provider that fails its governed call is
// simply absent from the merge; the result is marked partial. Only
// when every provider fails is ErrNoData returned.
func (r *Reconciler) Reconcile(ctx context.Context, address string) (*storage.Canonical, error) {
	ctx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	results := make([]*domain.PartialRecord, len(r.adapters))
	var wg sync.WaitGroup

	for i, adapter := range r.adapters {
		wg.Add(1)
		go func(i int, a provider.Adapter) {
			defer wg.Done()

			var record *domain.PartialRecord
			err := r.gov.Execute(ctx, a.ID(), func(ctx context.Context) error {
				var fetchErr error
				record, fetchErr = a.Fetch(ctx, address)
				return fetchErr
			})
			if err != nil {
				r.log.Warn().
					Err(err).
					Str("provider", a.ID()).
					Str("token", address).
					Msg("provider fetch failed")
				return
			}
			results[i] = record
		}(i, adapter)
	}
	wg.Wait()

	// Keep priority order, drop failures.
	records := make([]*domain.PartialRecord, 0, len(results))
	for _, record := range results {
		if record != nil {
			records = append(records, record)
		}
	}
	if len(records) == 0 {
		observability.RecordReconcile("no_data", false)
		return nil, ErrNoData
	}

	c := Merge(address, records, len(r.adapters), time.Now().UnixMilli())
	observability.RecordReconcile("ok", c.Token.Partial)

	r.log.Debug().
		Str("token", address).
		Int("providers", len(records)).
		Bool("partial", c.Token.Partial).
		Msg("reconciled token")

	return c, nil
}
