package domain

// PriceSample is one price observation for a token from one provider.
// Per (token, source) the stream is strictly increasing in Timestamp;
// cross-source samples are independent observations and never merged.
// Corresponds to the price_samples table in ClickHouse.
type PriceSample struct {
	TokenAddress string
	PriceUSD     float64
	Volume24h    float64
	MarketCap    float64
	Timestamp    int64  // Unix timestamp in milliseconds
	Source       string // provider ID that observed the sample
}
