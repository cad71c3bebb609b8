package domain

// TransactionRecord is one observed token transfer. Immutable once
// recorded; TxHash is unique per token.
type TransactionRecord struct {
	TokenAddress string
	TxHash       string
	FromAddress  string
	ToAddress    string
	Amount       float64
	Timestamp    int64 // Unix timestamp in milliseconds
	BlockNumber  int64
}
