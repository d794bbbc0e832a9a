// Package chain provides Neo N3 RPC access for the dispatch layer.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Client is a plain Neo N3 JSON-RPC client. It performs no rate limiting of
// its own; wrap it in a DispatchingClient for that.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a new Neo N3 client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// URL returns the endpoint this client talks to.
func (c *Client) URL() string { return c.rpcURL }

// Call makes an RPC call to the Neo N3 node.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// GetBlockCount returns the current block height.
func (c *Client) GetBlockCount(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "getblockcount", nil)
	if err != nil {
		return 0, err
	}

	var count uint64
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetVersion returns the node's user agent and network magic.
func (c *Client) GetVersion(ctx context.Context) (*VersionInfo, error) {
	result, err := c.Call(ctx, "getversion", nil)
	if err != nil {
		return nil, err
	}

	return &VersionInfo{
		UserAgent: gjson.GetBytes(result, "useragent").String(),
		Network:   uint32(gjson.GetBytes(result, "protocol.network").Uint()),
	}, nil
}

// GetNep17Balances returns NEP-17 token balances for an address.
func (c *Client) GetNep17Balances(ctx context.Context, address string) (*Nep17Balances, error) {
	result, err := c.Call(ctx, "getnep17balances", []any{address})
	if err != nil {
		return nil, err
	}

	var balances Nep17Balances
	if err := json.Unmarshal(result, &balances); err != nil {
		return nil, err
	}
	return &balances, nil
}

// ValidateAddress checks whether the node considers address valid.
func (c *Client) ValidateAddress(ctx context.Context, address string) (bool, error) {
	result, err := c.Call(ctx, "validateaddress", []any{address})
	if err != nil {
		return false, err
	}
	return gjson.GetBytes(result, "isvalid").Bool(), nil
}
