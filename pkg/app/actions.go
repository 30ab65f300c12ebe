// Package app binds the dashboard's user actions (connect, copy, refresh,
// send) to the wallet connector and the watcher. The terminal UI and the HTTP
// surface both drive it.
package app

import (
	"context"
	"errors"
	"fmt"

	"jupiterdash/pkg/format"
	"jupiterdash/pkg/metrics"
	"jupiterdash/pkg/models"
	"jupiterdash/pkg/wallet"
	"jupiterdash/pkg/watcher"

	"github.com/atotto/clipboard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// Clipboard is the system clipboard capability.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes through atotto/clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("%w: %v", ErrClipboardUnavailable, err)
	}
	return nil
}

// Actions is the single entry point for user-triggered operations.
type Actions struct {
	connector *wallet.Connector
	watcher   *watcher.Watcher
	clipboard Clipboard
	log       zerolog.Logger
}

func NewActions(connector *wallet.Connector, w *watcher.Watcher, cb Clipboard, logger zerolog.Logger) *Actions {
	return &Actions{
		connector: connector,
		watcher:   w,
		clipboard: cb,
		log:       logger.With().Str("component", "actions").Logger(),
	}
}

// Address returns the signed address, if any.
func (a *Actions) Address() (common.Address, bool) {
	return a.connector.Address()
}

// Transfer returns the fixed transfer Send submits.
func (a *Actions) Transfer() wallet.Transfer {
	return a.connector.Transfer()
}

// Connect asks the wallet for an account and, on success, refreshes the
// dashboard so the balance appears.
func (a *Actions) Connect(ctx context.Context) (common.Address, error) {
	addr, err := a.connector.Connect(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("connect failed")
		return common.Address{}, err
	}
	a.watcher.Publish(watcher.Event{Type: watcher.EventWalletConnected, Data: addr.Hex()})
	a.watcher.Refresh()
	return addr, nil
}

// Copy writes the signed address to the clipboard. Without one it fails with
// wallet.ErrNotConnected and leaves the clipboard alone.
func (a *Actions) Copy() (string, error) {
	addr, ok := a.connector.Address()
	if !ok {
		return "", wallet.ErrNotConnected
	}
	if err := a.clipboard.WriteAll(addr.Hex()); err != nil {
		a.log.Warn().Err(err).Msg("copy failed")
		return "", err
	}
	return addr.Hex(), nil
}

// Refresh triggers a dashboard cycle.
func (a *Actions) Refresh() {
	a.watcher.Refresh()
}

// Send submits the fixed transfer. The outcome is logged, published and
// returned; a failure never reaches the update loop.
func (a *Actions) Send(ctx context.Context) (models.TransferResult, error) {
	t := a.connector.Transfer()
	ether, _ := format.FormatEther(format.ToHex(t.Value))
	res := models.TransferResult{To: t.To.Hex(), Value: ether}

	hash, err := a.connector.SendFixedTransfer(ctx)
	if from, ok := a.connector.Address(); ok {
		res.From = from.Hex()
	}
	metrics.Transfers.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		res.Error = err.Error()
		a.log.Error().Err(err).Str("to", res.To).Msg("transfer failed")
	} else {
		res.Hash = hash.Hex()
		a.log.Info().Str("hash", res.Hash).Str("from", res.From).Str("to", res.To).Msg("transfer submitted")
	}
	a.watcher.Publish(watcher.Event{Type: watcher.EventTransferSubmitted, Data: res})
	return res, err
}
