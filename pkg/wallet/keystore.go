package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const transferGas = 21000

// Prompter asks the user to unlock an account. Declining returns ErrUserRejected.
type Prompter interface {
	Passphrase(ctx context.Context, account common.Address) (string, error)
}

// StaticPrompter answers every prompt with the same passphrase.
type StaticPrompter struct {
	passphrase string
	ok         bool
}

func NewStaticPrompter(passphrase string) *StaticPrompter {
	return &StaticPrompter{passphrase: passphrase, ok: true}
}

// NewFilePrompter reads the passphrase from path. An empty path yields a
// prompter that rejects every request.
func NewFilePrompter(path string) (*StaticPrompter, error) {
	if path == "" {
		return &StaticPrompter{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read passphrase file: %w", err)
	}
	return NewStaticPrompter(strings.TrimRight(string(data), "\r\n")), nil
}

func (p *StaticPrompter) Passphrase(ctx context.Context, account common.Address) (string, error) {
	if !p.ok {
		return "", ErrUserRejected
	}
	return p.passphrase, nil
}

// KeystoreProvider serves wallet requests from a local keystore directory and
// broadcasts signed transactions through the chain endpoint.
type KeystoreProvider struct {
	ks       *keystore.KeyStore
	chain    *ethclient.Client
	prompter Prompter
	selected string

	mu       sync.Mutex
	unlocked *accounts.Account
}

// NewKeystoreProvider opens dir. selected picks an account by address; empty
// means the first one.
func NewKeystoreProvider(dir, selected string, conn *gethrpc.Client, prompter Prompter) *KeystoreProvider {
	return newKeystoreProvider(keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP), selected, conn, prompter)
}

func newKeystoreProvider(ks *keystore.KeyStore, selected string, conn *gethrpc.Client, prompter Prompter) *KeystoreProvider {
	return &KeystoreProvider{
		ks:       ks,
		chain:    ethclient.NewClient(conn),
		prompter: prompter,
		selected: selected,
	}
}

func (p *KeystoreProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	switch method {
	case MethodRequestAccounts:
		acc, err := p.requestAccount(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal([]common.Address{acc.Address})
	case MethodSendTransaction:
		if len(params) != 1 {
			return nil, &ProviderError{Code: -32602, Message: "eth_sendTransaction expects one transaction object"}
		}
		var req TxRequest
		buf, err := json.Marshal(params[0])
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(buf, &req); err != nil {
			return nil, &ProviderError{Code: -32602, Message: fmt.Sprintf("invalid transaction: %v", err)}
		}
		hash, err := p.sendTransaction(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hash)
	default:
		return nil, &ProviderError{Code: CodeUnsupportedMethod, Message: fmt.Sprintf("method %s is not supported", method)}
	}
}

func (p *KeystoreProvider) requestAccount(ctx context.Context) (accounts.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlocked != nil {
		return *p.unlocked, nil
	}

	all := p.ks.Accounts()
	if len(all) == 0 {
		return accounts.Account{}, fmt.Errorf("keystore has no accounts: %w", ErrWalletUnavailable)
	}
	acc := all[0]
	if p.selected != "" {
		found := false
		for _, a := range all {
			if strings.EqualFold(a.Address.Hex(), p.selected) {
				acc, found = a, true
				break
			}
		}
		if !found {
			return accounts.Account{}, fmt.Errorf("account %s not in keystore: %w", p.selected, ErrWalletUnavailable)
		}
	}

	pass, err := p.prompter.Passphrase(ctx, acc.Address)
	if err != nil {
		return accounts.Account{}, err
	}
	if err := p.ks.Unlock(acc, pass); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return accounts.Account{}, &ProviderError{Code: CodeUnauthorized, Message: "wrong passphrase"}
		}
		return accounts.Account{}, err
	}
	p.unlocked = &acc
	return acc, nil
}

func (p *KeystoreProvider) sendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	p.mu.Lock()
	acc := p.unlocked
	p.mu.Unlock()
	if acc == nil || acc.Address != req.From {
		return common.Hash{}, &ProviderError{Code: CodeUnauthorized, Message: fmt.Sprintf("account %s is not unlocked", req.From.Hex())}
	}

	nonce, err := p.chain.PendingNonceAt(ctx, req.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := p.chain.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get gas price: %w", err)
	}
	chainID, err := p.chain.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get chain id: %w", err)
	}

	value := new(big.Int)
	if req.Value != nil {
		value = req.Value.ToInt()
	}
	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      transferGas,
		To:       &to,
		Value:    value,
	})
	signed, err := p.ks.SignTx(*acc, tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := p.chain.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast transaction: %w", err)
	}
	return signed.Hash(), nil
}
