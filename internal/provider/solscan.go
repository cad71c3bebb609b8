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

// SolscanAdapter fetches token metadata and recent transfers from the
// Solscan REST API. Lowest-priority source; it mostly fills gaps the
// others leave and contributes the transfer history.
type SolscanAdapter struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
}

// SolscanOption configures SolscanAdapter.
type SolscanOption func(*SolscanAdapter)

// WithSolscanHTTPClient sets a custom http.Client.
func WithSolscanHTTPClient(client *http.Client) SolscanOption {
	return func(a *SolscanAdapter) {
		a.client = client
	}
}

// NewSolscanAdapter creates a Solscan adapter against the given base URL.
func NewSolscanAdapter(baseURL, apiKey string, opts ...SolscanOption) *SolscanAdapter {
	a := &SolscanAdapter{
		id:      "solscan",
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ Adapter = (*SolscanAdapter)(nil)

// ID returns "solscan".
func (a *SolscanAdapter) ID() string {
	return a.id
}

// Fetch retrieves token metadata and the latest transfers.
func (a *SolscanAdapter) Fetch(ctx context.Context, address string) (*domain.PartialRecord, error) {
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

// tokenMeta is the raw /token/meta response payload.
type tokenMeta struct {
	Success bool `json:"success"`
	Data    struct {
		Name     string  `json:"name"`
		Symbol   string  `json:"symbol"`
		Decimals int     `json:"decimals"`
		Supply   float64 `json:"supply"`
		Holder   int     `json:"holder"`
		Creator  string  `json:"creator"`
	} `json:"data"`
}

// tokenTransfers is the raw /token/transfer response payload.
type tokenTransfers struct {
	Success bool `json:"success"`
	Data    []struct {
		TransID     string  `json:"trans_id"`
		FromAddress string  `json:"from_address"`
		ToAddress   string  `json:"to_address"`
		Amount      float64 `json:"amount"`
		BlockTime   int64   `json:"block_time"` // seconds
		BlockID     int64   `json:"block_id"`
	} `json:"data"`
}

func (a *SolscanAdapter) fetch(ctx context.Context, address string) (*domain.PartialRecord, error) {
	var meta tokenMeta
	if err := a.get(ctx, "/token/meta?address="+url.QueryEscape(address), &meta); err != nil {
		return nil, err
	}
	if !meta.Success {
		return nil, fmt.Errorf("%s: meta request unsuccessful", a.id)
	}

	var transfers tokenTransfers
	if err := a.get(ctx, "/token/transfer?address="+url.QueryEscape(address), &transfers); err != nil {
		return nil, err
	}

	record := &domain.PartialRecord{
		Provider:  a.id,
		Address:   address,
		FetchedAt: time.Now().UnixMilli(),
		Metadata:  map[string]any{},
	}

	if meta.Data.Name != "" {
		record.Name = ptr(meta.Data.Name)
	}
	if meta.Data.Symbol != "" {
		record.Symbol = ptr(meta.Data.Symbol)
	}
	if meta.Data.Decimals > 0 {
		record.Decimals = ptr(meta.Data.Decimals)
	}
	if meta.Data.Supply > 0 {
		record.Supply = ptr(meta.Data.Supply)
	}
	if meta.Data.Holder > 0 {
		record.HolderCount = ptr(meta.Data.Holder)
	}
	if meta.Data.Creator != "" {
		record.Metadata["creator"] = meta.Data.Creator
	}

	for _, t := range transfers.Data {
		record.Transactions = append(record.Transactions, domain.TransactionRecord{
			TokenAddress: address,
			TxHash:       t.TransID,
			FromAddress:  t.FromAddress,
			ToAddress:    t.ToAddress,
			Amount:       t.Amount,
			Timestamp:    t.BlockTime * 1000,
			BlockNumber:  t.BlockID,
		})
	}

	return record, nil
}

// get performs one GET call against the Solscan API. No retries here.
func (a *SolscanAdapter) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("token", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return requestError(a.id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return requestError(a.id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(a.id, resp.StatusCode)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", a.id, err)
	}
	return nil
}
