package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/governor"
	"tokenwatch/internal/observability"
)

// BirdeyeAdapter fetches market data (price, volume, market cap) from
// the Birdeye REST API. It also carries basic metadata used as a
// fallback when higher-priority providers fail.
type BirdeyeAdapter struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
}

// BirdeyeOption configures BirdeyeAdapter.
type BirdeyeOption func(*BirdeyeAdapter)

// WithBirdeyeHTTPClient sets a custom http.Client.
func WithBirdeyeHTTPClient(client *http.Client) BirdeyeOption {
	return func(a *BirdeyeAdapter) {
		a.client = client
	}
}

// NewBirdeyeAdapter creates a Birdeye adapter against the given base URL.
func NewBirdeyeAdapter(baseURL, apiKey string, opts ...BirdeyeOption) *BirdeyeAdapter {
	a := &BirdeyeAdapter{
		id:      "birdeye",
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ Adapter = (*BirdeyeAdapter)(nil)

// ID returns "birdeye".
func (a *BirdeyeAdapter) ID() string {
	return a.id
}

// tokenOverview is the raw /defi/token_overview response payload.
type tokenOverview struct {
	Success bool `json:"success"`
	Data    struct {
		Name      string  `json:"name"`
		Symbol    string  `json:"symbol"`
		Decimals  int     `json:"decimals"`
		Supply    float64 `json:"supply"`
		Price     float64 `json:"price"`
		V24hUSD   float64 `json:"v24hUSD"`
		MarketCap float64 `json:"mc"`
		Holder    int     `json:"holder"`
	} `json:"data"`
}

// Fetch retrieves the token overview and normalizes it into a partial
// record carrying a price sample.
func (a *BirdeyeAdapter) Fetch(ctx context.Context, address string) (*domain.PartialRecord, error) {
	start := time.Now()

	record, err := a.fetch(ctx, address)

	status := "ok"
	if err != nil {
		status = "error"
		if governor.IsTransient(err) {
			status = "transient"
		}
	}
	observability.RecordProviderCall(a.id, status, time.Since(start).Seconds())

	return record, err
}

func (a *BirdeyeAdapter) fetch(ctx context.Context, address string) (*domain.PartialRecord, error) {
	endpoint := fmt.Sprintf("%s/defi/token_overview?address=%s", a.baseURL, url.QueryEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("X-API-KEY", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, requestError(a.id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestError(a.id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(a.id, resp.StatusCode)
	}

	var overview tokenOverview
	if err := json.Unmarshal(body, &overview); err != nil {
		return nil, fmt.Errorf("%s: unmarshal response: %w", a.id, err)
	}
	if !overview.Success {
		return nil, fmt.Errorf("%s: overview request unsuccessful", a.id)
	}

	now := time.Now().UnixMilli()
	record := &domain.PartialRecord{
		Provider:  a.id,
		Address:   address,
		FetchedAt: now,
		Metadata: map[string]any{
			"market_cap": overview.Data.MarketCap,
		},
	}

	if overview.Data.Name != "" {
		record.Name = ptr(overview.Data.Name)
	}
	if overview.Data.Symbol != "" {
		record.Symbol = ptr(overview.Data.Symbol)
	}
	if overview.Data.Decimals > 0 {
		record.Decimals = ptr(overview.Data.Decimals)
	}
	if overview.Data.Supply > 0 {
		record.Supply = ptr(overview.Data.Supply)
	}
	if overview.Data.Holder > 0 {
		record.HolderCount = ptr(overview.Data.Holder)
	}
	if overview.Data.Price > 0 {
		record.Price = &domain.PriceSample{
			TokenAddress: address,
			PriceUSD:     overview.Data.Price,
			Volume24h:    overview.Data.V24hUSD,
			MarketCap:    overview.Data.MarketCap,
			Timestamp:    now,
			Source:       a.id,
		}
	}

	return record, nil
}
