package ledger

import (
	"encoding/json"
	"fmt"
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// invokeParams addresses a state-changing contract call through the signing
// bridge. The bridge signs with the account behind the bearer credential and
// waits for confirmation before responding.
type invokeParams struct {
	Contract string        `json:"contract"`
	Method   string        `json:"method"`
	Args     []interface{} `json:"args"`
}

// invokeResult is the bridge's confirmation payload for a write.
type invokeResult struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	DataHash    string `json:"dataHash,omitempty"`
	GasUsed     string `json:"gasUsed,omitempty"`
}

// CreateReceipt is the outcome of recording a shipment creation.
type CreateReceipt struct {
	TxRef       string `json:"txRef"`
	ContentHash string `json:"contentHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

// UpdateReceipt is the outcome of recording a status update.
type UpdateReceipt struct {
	TxRef       string `json:"txRef"`
	BlockNumber uint64 `json:"blockNumber"`
}

// Record is the on-chain view of a shipment.
type Record struct {
	ShipmentID  string `json:"shipmentId"`
	Status      string `json:"status"`
	Timestamp   int64  `json:"timestamp"`
	CreatedBy   string `json:"createdBy"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Carrier     string `json:"carrier"`
	DataHash    string `json:"dataHash"`
}

// HistoryEntry is one on-chain status event.
type HistoryEntry struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	UpdatedBy string `json:"updatedBy"`
	Location  string `json:"location"`
	Notes     string `json:"notes"`
}

// NetworkInfo describes the chain the bridge is connected to.
type NetworkInfo struct {
	ChainID      uint64 `json:"chainId"`
	Name         string `json:"name"`
	CurrentBlock uint64 `json:"currentBlock"`
}
