package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"

	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
)

// Client is a minimal Neo N3 JSON-RPC client implementing Source.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// RPCRequest is a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// RPCResponse is a JSON-RPC response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Neo nodes answer getblockhash for an unknown index with this code.
const codeUnknownBlock = -100

var _ Source = (*Client)(nil)

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
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Call makes an RPC call to the Neo N3 node.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

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

// BlockHeight returns the index of the latest block.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "getblockcount")
	if err != nil {
		return 0, err
	}
	var count uint64
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, fmt.Errorf("unmarshal block count: %w", err)
	}
	if count == 0 {
		return 0, fmt.Errorf("node reports no blocks")
	}
	return count - 1, nil
}

// BlockHash returns the hash of the block at height.
func (c *Client) BlockHash(ctx context.Context, height uint64) (util.Uint256, error) {
	result, err := c.Call(ctx, "getblockhash", height)
	if err != nil {
		if rpcErr, ok := err.(*RPCError); ok && rpcErr.Code == codeUnknownBlock {
			return util.Uint256{}, svcerrors.ErrBlockhashNotFound.WithDetails("height", height)
		}
		return util.Uint256{}, err
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return util.Uint256{}, fmt.Errorf("unmarshal block hash: %w", err)
	}
	h, err := util.Uint256DecodeStringLE(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return util.Uint256{}, fmt.Errorf("decode block hash: %w", err)
	}
	return h, nil
}
