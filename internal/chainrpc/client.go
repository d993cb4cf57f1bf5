package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
)

// request and response are the raw JSON-RPC 2.0 envelopes. Every call
// through Client gets a fresh, process-unique id from a shared atomic
// counter — request ids are never reused across node and indexer calls,
// matching the contract in spec §4.A.
type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Caller abstracts the HTTP transport to a single JSON-RPC endpoint,
// letting tests substitute a fake without standing up an HTTP server.
type Caller interface {
	Call(ctx context.Context, url string, req request) (*response, error)
}

// Client is a typed JSON-RPC client for a chain node and its cell
// indexer. A single Client is safe for concurrent use: the request id
// counter is atomic, and neither endpoint holds mutable call state.
type Client struct {
	nodeURL    string
	indexerURL string
	caller     Caller
	requestID  atomic.Uint64
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithCaller overrides the default HTTP transport, for tests.
func WithCaller(c Caller) Option {
	return func(cl *Client) { cl.caller = c }
}

// WithTimeout sets the per-request timeout used by the default HTTP
// transport. Ignored if WithCaller is also given.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if hc, ok := cl.caller.(*httpCaller); ok {
			hc.timeout = d
		}
	}
}

// New creates a Client. If indexerURL is empty, indexer calls are routed
// to nodeURL, per spec's "indexer_rpc defaults to ckb_rpc" setting.
func New(nodeURL, indexerURL string, opts ...Option) *Client {
	if indexerURL == "" {
		indexerURL = nodeURL
	}
	c := &Client{
		nodeURL:    nodeURL,
		indexerURL: indexerURL,
		caller:     &httpCaller{timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nextID returns the next process-unique JSON-RPC request id.
func (c *Client) nextID() uint64 {
	return c.requestID.Add(1)
}

func (c *Client) call(ctx context.Context, url, method string, params []interface{}, out interface{}) error {
	req := request{
		JSONRPC: "2.0",
		ID:      c.nextID(),
		Method:  method,
		Params:  params,
	}

	resp, err := c.caller.Call(ctx, url, req)
	if err != nil {
		return dobtype.Wrap(dobtype.KindJsonRpcRequestError, fmt.Sprintf("transport error calling %s", method), err)
	}
	if resp.Error != nil {
		return dobtype.New(dobtype.KindJsonRpcRequestError,
			fmt.Sprintf("%s: rpc error %d: %s", method, resp.Error.Code, resp.Error.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return dobtype.Wrap(dobtype.KindJsonRpcRequestError, fmt.Sprintf("decode %s result", method), err)
	}
	return nil
}

// GetLiveCell fetches a cell by out-point, optionally with its data blob.
func (c *Client) GetLiveCell(ctx context.Context, out OutPoint, withData bool) (*CellWithStatus, error) {
	var result CellWithStatus
	err := c.call(ctx, c.nodeURL, "get_live_cell", []interface{}{out, withData}, &result)
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindFetchLiveCellsError, "get_live_cell", err)
	}
	return &result, nil
}

// GetCells searches the indexer for cells matching a script, returning at
// most limit results starting after cursor (empty cursor = start).
func (c *Client) GetCells(ctx context.Context, key SearchKey, limit uint32, cursor string) (*Paginated[IndexerCell], error) {
	var result Paginated[IndexerCell]
	params := []interface{}{key, "asc", hexUint(limit), cursorParam(cursor)}
	if err := c.call(ctx, c.indexerURL, "get_cells", params, &result); err != nil {
		return nil, dobtype.Wrap(dobtype.KindFetchLiveCellsError, "get_cells", err)
	}
	return &result, nil
}

// GetTransactions searches the indexer for transactions touching cells
// matching a script.
func (c *Client) GetTransactions(ctx context.Context, key SearchKey, limit uint32, cursor string) (*Paginated[IndexerTx], error) {
	var result Paginated[IndexerTx]
	params := []interface{}{key, "asc", hexUint(limit), cursorParam(cursor)}
	if err := c.call(ctx, c.indexerURL, "get_transactions", params, &result); err != nil {
		return nil, dobtype.Wrap(dobtype.KindFetchTransactionError, "get_transactions", err)
	}
	return &result, nil
}

// GetTransaction fetches a full transaction by hash. Returns (nil, nil)
// if the node has no record of the hash.
func (c *Client) GetTransaction(ctx context.Context, hash Hex32) (*Transaction, error) {
	var result TransactionWithStatus
	if err := c.call(ctx, c.nodeURL, "get_transaction", []interface{}{hash}, &result); err != nil {
		return nil, dobtype.Wrap(dobtype.KindFetchTransactionError, "get_transaction", err)
	}
	return result.Transaction, nil
}

func hexUint(v uint32) string {
	return fmt.Sprintf("0x%x", v)
}

func cursorParam(cursor string) interface{} {
	if cursor == "" {
		return nil
	}
	return cursor
}

// httpCaller is the default Caller, a single POST per call against a
// chain node's JSON-RPC HTTP endpoint.
type httpCaller struct {
	timeout time.Duration
	client  http.Client
}

func (h *httpCaller) Call(ctx context.Context, url string, req request) (*response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http call: %w", err)
	}
	defer httpResp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}
