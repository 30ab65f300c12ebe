package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

var (
	ErrWalletUnavailable = errors.New("no wallet provider available")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrNotConnected      = errors.New("wallet not connected")
)

// Transfer is the fixed transfer the send action submits.
type Transfer struct {
	To    common.Address
	Value *big.Int
}

var DefaultTransfer = Transfer{
	To:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
	Value: big.NewInt(10000000000000000), // 0.01 native unit
}

// Connector owns the signed address. It is unset until Connect succeeds and
// is never cleared afterwards.
type Connector struct {
	provider Provider
	transfer Transfer
	log      zerolog.Logger

	mu      sync.RWMutex
	address *common.Address
}

// NewConnector wraps provider, which may be nil when no wallet is configured.
func NewConnector(provider Provider, transfer Transfer, logger zerolog.Logger) *Connector {
	if transfer.Value == nil {
		transfer.Value = new(big.Int)
	}
	return &Connector{
		provider: provider,
		transfer: transfer,
		log:      logger.With().Str("component", "wallet").Logger(),
	}
}

// Address returns the signed address and whether one is set.
func (c *Connector) Address() (common.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.address == nil {
		return common.Address{}, false
	}
	return *c.address, true
}

func (c *Connector) Transfer() Transfer {
	return c.transfer
}

// Connect requests account access and records the first account returned.
func (c *Connector) Connect(ctx context.Context) (common.Address, error) {
	if c.provider == nil {
		return common.Address{}, ErrWalletUnavailable
	}

	raw, err := c.provider.Request(ctx, MethodRequestAccounts)
	if err != nil {
		err = normalize(err)
		c.log.Warn().Err(err).Msg("account request failed")
		return common.Address{}, err
	}

	var accs []common.Address
	if err := json.Unmarshal(raw, &accs); err != nil {
		return common.Address{}, fmt.Errorf("decode accounts: %w", err)
	}
	if len(accs) == 0 {
		return common.Address{}, fmt.Errorf("provider returned no accounts: %w", ErrWalletUnavailable)
	}

	addr := accs[0]
	c.mu.Lock()
	c.address = &addr
	c.mu.Unlock()

	c.log.Info().Str("address", addr.Hex()).Msg("wallet connected")
	return addr, nil
}

// SendFixedTransfer submits the configured transfer from the signed address,
// connecting first if needed. It returns once the wallet accepts the
// transaction; it does not wait for mining.
func (c *Connector) SendFixedTransfer(ctx context.Context) (common.Hash, error) {
	from, ok := c.Address()
	if !ok {
		var err error
		if from, err = c.Connect(ctx); err != nil {
			return common.Hash{}, err
		}
	}

	req := TxRequest{
		From:  from,
		To:    c.transfer.To,
		Value: (*hexutil.Big)(c.transfer.Value),
	}
	raw, err := c.provider.Request(ctx, MethodSendTransaction, req)
	if err != nil {
		return common.Hash{}, normalize(err)
	}

	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("decode transaction hash: %w", err)
	}
	return hash, nil
}

// normalize maps EIP-1193 rejections onto ErrUserRejected.
func normalize(err error) error {
	if errors.Is(err, ErrUserRejected) {
		return err
	}
	var coded gethrpc.Error
	if errors.As(err, &coded) && coded.ErrorCode() == CodeUserRejected {
		return fmt.Errorf("%w: %s", ErrUserRejected, coded.Error())
	}
	return err
}
