package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/governor"
	"tokenwatch/internal/observability"
)

// HeliusAdapter fetches token metadata and top holders over the Helius
// JSON-RPC endpoint. It is the authoritative source for on-chain
// metadata; market data comes from Birdeye.
type HeliusAdapter struct {
	id        string
	baseURL   string
	apiKey    string
	client    *http.Client
	requestID atomic.Uint64
}

// HeliusOption configures HeliusAdapter.
type HeliusOption func(*HeliusAdapter)

// WithHeliusHTTPClient sets a custom http.Client.
func WithHeliusHTTPClient(client *http.Client) HeliusOption {
	return func(a *HeliusAdapter) {
		a.client = client
	}
}

// NewHeliusAdapter creates a Helius adapter against the given base URL.
func NewHeliusAdapter(baseURL, apiKey string, opts ...HeliusOption) *HeliusAdapter {
	a := &HeliusAdapter{
		id:      "helius",
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ Adapter = (*HeliusAdapter)(nil)

// ID returns "helius".
func (a *HeliusAdapter) ID() string {
	return a.id
}

// Fetch retrieves asset metadata and the largest token accounts,
// normalized into one partial record.
func (a *HeliusAdapter) Fetch(ctx context.Context, address string) (*domain.PartialRecord, error) {
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

func (a *HeliusAdapter) fetch(ctx context.Context, address string) (*domain.PartialRecord, error) {
	asset, err := a.getAsset(ctx, address)
	if err != nil {
		return nil, err
	}

	record := &domain.PartialRecord{
		Provider:  a.id,
		Address:   address,
		FetchedAt: time.Now().UnixMilli(),
		Metadata:  map[string]any{},
	}

	if asset.Content.Metadata.Name != "" {
		record.Name = ptr(asset.Content.Metadata.Name)
	}
	if asset.Content.Metadata.Symbol != "" {
		record.Symbol = ptr(asset.Content.Metadata.Symbol)
	}
	record.Decimals = ptr(asset.TokenInfo.Decimals)

	supply := rawToUI(asset.TokenInfo.Supply, asset.TokenInfo.Decimals)
	record.Supply = ptr(supply)

	verified := false
	for _, c := range asset.Creators {
		if c.Verified {
			verified = true
			record.Metadata["creator"] = c.Address
			break
		}
	}
	record.IsVerified = ptr(verified)
	if len(asset.Authorities) > 0 {
		record.Metadata["authority"] = asset.Authorities[0].Address
	}

	largest, err := a.getTokenLargestAccounts(ctx, address)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	for _, acc := range largest {
		holder := domain.HolderSnapshot{
			TokenAddress:  address,
			WalletAddress: acc.Address,
			Balance:       acc.UIAmount,
			FirstSeen:     now,
			LastUpdated:   now,
		}
		if supply > 0 {
			holder.Percentage = acc.UIAmount / supply * 100
		}
		record.TopHolders = append(record.TopHolders, holder)
	}

	return record, nil
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC call. No retries here.
func (a *HeliusAdapter) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      a.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := a.baseURL
	if a.apiKey != "" {
		url += "/?api-key=" + a.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return requestError(a.id, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return requestError(a.id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(a.id, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", a.id, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", a.id, rpcResp.Error)
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%s: unmarshal result: %w", a.id, err)
		}
	}
	return nil
}

// getAssetResult is the raw DAS response for getAsset.
type getAssetResult struct {
	Content struct {
		Metadata struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"metadata"`
	} `json:"content"`
	TokenInfo struct {
		Supply   float64 `json:"supply"`
		Decimals int     `json:"decimals"`
	} `json:"token_info"`
	Creators []struct {
		Address  string `json:"address"`
		Verified bool   `json:"verified"`
	} `json:"creators"`
	Authorities []struct {
		Address string `json:"address"`
	} `json:"authorities"`
}

func (a *HeliusAdapter) getAsset(ctx context.Context, address string) (*getAssetResult, error) {
	var result getAssetResult
	params := map[string]any{"id": address}
	if err := a.call(ctx, "getAsset", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// largestAccount is one entry of getTokenLargestAccounts.
type largestAccount struct {
	Address  string  `json:"address"`
	UIAmount float64 `json:"uiAmount"`
}

func (a *HeliusAdapter) getTokenLargestAccounts(ctx context.Context, address string) ([]largestAccount, error) {
	var result struct {
		Value []largestAccount `json:"value"`
	}
	params := []any{address}
	if err := a.call(ctx, "getTokenLargestAccounts", params, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// rawToUI converts a raw integer supply into UI units.
func rawToUI(raw float64, decimals int) float64 {
	for i := 0; i < decimals; i++ {
		raw /= 10
	}
	return raw
}
