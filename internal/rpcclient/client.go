// Package rpcclient provides an HTTP client for Pulse nodes, used by
// pulse-cli and device-side tooling.
package rpcclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pulse-net/pulse-chain/pkg/types"
)

// Client talks to a node's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client targeting the given base URL (e.g.
// "http://127.0.0.1:8080").
func New(baseURL string) *Client {
	return NewWithTimeout(baseURL, 10*time.Second)
}

// NewWithTimeout creates a client with a custom HTTP timeout.
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is a failure envelope returned by the node.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("node error (HTTP %d): %s", e.StatusCode, e.Message)
}

// envelope mirrors the node's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// call performs a request and unmarshals the envelope's data into result.
func (c *Client) call(method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if result != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// Health checks node liveness.
func (c *Client) Health() error {
	return c.call(http.MethodGet, "/health", nil, nil)
}

// Stats returns the network statistics.
func (c *Client) Stats() (*types.NetworkStats, error) {
	var stats types.NetworkStats
	if err := c.call(http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ChainInfo returns the chain summary.
func (c *Client) ChainInfo() (*types.ChainInfo, error) {
	var info types.ChainInfo
	if err := c.call(http.MethodGet, "/chain", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// BlockList is the /blocks payload.
type BlockList struct {
	Blocks []*types.PulseBlock `json:"blocks"`
	Total  uint64              `json:"total"`
}

// Blocks lists blocks. Negative offset/limit omit the parameter.
func (c *Client) Blocks(offset, limit int) (*BlockList, error) {
	q := url.Values{}
	if offset >= 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if limit >= 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/blocks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list BlockList
	if err := c.call(http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Block fetches one block by index.
func (c *Client) Block(index uint64) (*types.PulseBlock, error) {
	var blk types.PulseBlock
	if err := c.call(http.MethodGet, "/block/"+strconv.FormatUint(index, 10), nil, &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}

// LatestBlock fetches the tip block.
func (c *Client) LatestBlock() (*types.PulseBlock, error) {
	var blk types.PulseBlock
	if err := c.call(http.MethodGet, "/block/latest", nil, &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}

// BalanceResult is the /balance payload.
type BalanceResult struct {
	PubKey  string  `json:"pubkey"`
	Balance float64 `json:"balance"`
}

// Balance fetches an account balance.
func (c *Client) Balance(pubkey string) (*BalanceResult, error) {
	var bal BalanceResult
	if err := c.call(http.MethodGet, "/balance/"+url.PathEscape(pubkey), nil, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// Accounts lists all known accounts.
func (c *Client) Accounts() ([]types.Account, error) {
	var accounts []types.Account
	if err := c.call(http.MethodGet, "/accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SubmitHeartbeat posts a signed heartbeat.
func (c *Client) SubmitHeartbeat(hb *types.Heartbeat) error {
	return c.call(http.MethodPost, "/pulse", hb, nil)
}

// SubmitTransaction posts a signed transaction.
func (c *Client) SubmitTransaction(tx *types.Transaction) error {
	return c.call(http.MethodPost, "/tx", tx, nil)
}
