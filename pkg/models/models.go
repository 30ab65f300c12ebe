package models

import (
	"time"
)

// Status is the state reported by the dashboard status field.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusFetching Status = "fetching"
	StatusOK       Status = "ok"
	StatusError    Status = "error"
)

// Snapshot is what the display surfaces render. Metric fields keep their last
// successful values when a later cycle fails.
type Snapshot struct {
	Status        Status    `json:"status"`
	StatusMessage string    `json:"status_message,omitempty"`
	BlockNumber   uint64    `json:"block_number"`
	BlockDisplay  string    `json:"block_display"`
	GasPriceGwei  string    `json:"gas_price_gwei"`
	Balance       string    `json:"balance"`
	Symbol        string    `json:"symbol"`
	Address       string    `json:"address,omitempty"`
	Connected     bool      `json:"connected"`
	LastUpdate    time.Time `json:"last_update"`
	Cycle         uint64    `json:"cycle"`
}

// GasPricePoint holds a timestamped gas price value.
type GasPricePoint struct {
	Timestamp time.Time
	Value     float64
}

// TransferResult is the reported outcome of a fixed transfer.
type TransferResult struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	Value string `json:"value"`
	Hash  string `json:"hash,omitempty"`
	Error string `json:"error,omitempty"`
}

// RPCResult holds probe results for an RPC URL.
type RPCResult struct {
	URL         string `json:"url"`
	Status      string `json:"status"` // "ok" or "error"
	ChainID     int64  `json:"chain_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	LatencyMs   int64  `json:"latency_ms,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TestReport holds the results of the configuration test.
type TestReport struct {
	ConfigPath      string    `json:"config_path"`
	ValidStructure  bool      `json:"valid_structure"`
	StructureErrors []string  `json:"structure_errors,omitempty"`
	WalletMode      string    `json:"wallet_mode"`
	RPC             RPCResult `json:"rpc"`
}
