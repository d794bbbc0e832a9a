package chain

import (
	"encoding/json"
	"fmt"
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is the error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPError reports a non-200 response from the node's HTTP layer.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// VersionInfo describes the node reached by GetVersion.
type VersionInfo struct {
	UserAgent string
	Network   uint32
}

// Nep17Balance is one asset balance from getnep17balances.
type Nep17Balance struct {
	AssetHash   string `json:"assethash"`
	Symbol      string `json:"symbol"`
	Decimals    string `json:"decimals"`
	Amount      string `json:"amount"`
	LastUpdated uint64 `json:"lastupdatedblock"`
}

// Nep17Balances is the full getnep17balances result for an address.
type Nep17Balances struct {
	Address  string         `json:"address"`
	Balances []Nep17Balance `json:"balance"`
}
