// Package wallet connects the dashboard to an account holder: an external
// signer reached over JSON-RPC, or a local go-ethereum keystore. Both speak the
// same request interface a browser wallet exposes.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodSendTransaction = "eth_sendTransaction"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
)

// Provider is the wallet capability. Params and results are JSON-RPC shaped.
type Provider interface {
	Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// ProviderError is an error carrying an EIP-1193 code. It satisfies
// go-ethereum's rpc.Error so remote and local providers are matched the same way.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string  { return e.Message }
func (e *ProviderError) ErrorCode() int { return e.Code }

// TxRequest is the single parameter of eth_sendTransaction.
type TxRequest struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
}

// RemoteProvider forwards requests to an external signer endpoint.
type RemoteProvider struct {
	url  string
	conn *gethrpc.Client
}

// NewRemoteProvider prepares a provider for a signer at url. Signers wait for
// the user to approve, so the HTTP timeout is generous.
func NewRemoteProvider(ctx context.Context, url string) (*RemoteProvider, error) {
	conn, err := gethrpc.DialOptions(ctx, url, gethrpc.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}))
	if err != nil {
		return nil, fmt.Errorf("dial signer %s: %w", url, err)
	}
	return &RemoteProvider{url: url, conn: conn}, nil
}

func (p *RemoteProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := p.conn.CallContext(ctx, &raw, method, params...); err != nil {
		return nil, err
	}
	return raw, nil
}

func (p *RemoteProvider) Close() {
	p.conn.Close()
}
