package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"jupiterdash/pkg/format"
	"jupiterdash/pkg/metrics"
	"jupiterdash/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

var DefaultTimeout = 30 * time.Second

// RPCError is returned when the remote method answered with an error object.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return e.Message
}

// TransportError is returned when the exchange itself failed: dial, non-2xx
// status, malformed body or timeout.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client issues single JSON-RPC calls against one endpoint.
type Client struct {
	url     string
	conn    *gethrpc.Client
	timeout time.Duration
}

// Dial prepares a client for url. For HTTP endpoints no connection is made until
// the first call.
func Dial(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := gethrpc.DialOptions(ctx, url, gethrpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, &TransportError{Method: "dial", Err: err}
	}
	return &Client{url: url, conn: conn, timeout: timeout}, nil
}

func (c *Client) URL() string { return c.url }

// Conn exposes the underlying connection for callers that need go-ethereum's
// typed clients on the same endpoint.
func (c *Client) Conn() *gethrpc.Client { return c.conn }

func (c *Client) Close() {
	c.conn.Close()
}

// Call performs one request/response exchange. There are no retries.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw json.RawMessage
	err := c.conn.CallContext(ctx, &raw, method, params...)
	metrics.RPCCalls.WithLabelValues(method, metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, classify(method, err)
	}
	return raw, nil
}

func classify(method string, err error) error {
	var remote gethrpc.Error
	if errors.As(err, &remote) {
		return &RPCError{Method: method, Code: remote.ErrorCode(), Message: remote.Error()}
	}
	return &TransportError{Method: method, Err: err}
}

func (c *Client) callQuantity(ctx context.Context, method string, params ...interface{}) (string, error) {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return "", err
	}
	var q string
	if err := json.Unmarshal(raw, &q); err != nil {
		return "", &TransportError{Method: method, Err: fmt.Errorf("result is not a quantity: %w", err)}
	}
	return q, nil
}

// BlockNumber returns the eth_blockNumber hex quantity.
func (c *Client) BlockNumber(ctx context.Context) (string, error) {
	return c.callQuantity(ctx, "eth_blockNumber")
}

// GasPrice returns the eth_gasPrice hex quantity in wei.
func (c *Client) GasPrice(ctx context.Context) (string, error) {
	return c.callQuantity(ctx, "eth_gasPrice")
}

// Balance returns the latest balance of account in wei as a hex quantity.
func (c *Client) Balance(ctx context.Context, account common.Address) (string, error) {
	return c.callQuantity(ctx, "eth_getBalance", account, "latest")
}

func (c *Client) ChainID(ctx context.Context) (string, error) {
	return c.callQuantity(ctx, "eth_chainId")
}

// Probe checks an endpoint by asking for its chain id and head block.
func Probe(ctx context.Context, url string, timeout time.Duration) models.RPCResult {
	res := models.RPCResult{URL: url, Status: "error"}
	start := time.Now()

	client, err := Dial(ctx, url, timeout)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer client.Close()

	idHex, err := client.ChainID(ctx)
	if err != nil {
		res.Error = fmt.Sprintf("failed to get chain id: %v", err)
		return res
	}
	id, err := format.HexToUint64(idHex)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	bnHex, err := client.BlockNumber(ctx)
	if err != nil {
		res.Error = fmt.Sprintf("failed to get block number: %v", err)
		return res
	}
	bn, err := format.HexToUint64(bnHex)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Status = "ok"
	res.ChainID = int64(id)
	res.BlockNumber = bn
	res.LatencyMs = time.Since(start).Milliseconds()
	return res
}
