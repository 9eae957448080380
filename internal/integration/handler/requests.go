package handler

// depositRequest is the observer-facing payload for a Bitcoin deposit.
type depositRequest struct {
	Subject       string `json:"subject"`
	AmountSats    int64  `json:"amount_sats"`
	TxHash        string `json:"tx_hash"`
	Confirmations uint32 `json:"confirmations"`
	BlockHeight   uint64 `json:"block_height"`
}

// withdrawalRequest asks to burn tokens and queue a Bitcoin payout.
type withdrawalRequest struct {
	Subject     string `json:"subject"`
	TokenAmount int64  `json:"token_amount"`
	BTCAddress  string `json:"btc_address"`
	ClientRef   string `json:"client_ref"`
}

// exchangeRequest converts between two platform tokens.
type exchangeRequest struct {
	Subject      string `json:"subject"`
	SourceSymbol string `json:"source_symbol"`
	DestSymbol   string `json:"dest_symbol"`
	SourceAmount int64  `json:"source_amount"`
	ClientRef    string `json:"client_ref"`
}
