package watcher

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"jupiterdash/pkg/format"
	"jupiterdash/pkg/metrics"
	"jupiterdash/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultInterval = 15 * time.Second

// ChainReader fetches raw hex quantities from the chain.
type ChainReader interface {
	BlockNumber(ctx context.Context) (string, error)
	GasPrice(ctx context.Context) (string, error)
	Balance(ctx context.Context, account common.Address) (string, error)
}

// AddressSource yields the signed address, if one is set.
type AddressSource interface {
	Address() (common.Address, bool)
}

// Options tune a Watcher. Zero values select defaults.
type Options struct {
	Interval        time.Duration
	Symbol          string
	GasHistoryLimit int
}

// Watcher runs dashboard update cycles and publishes the resulting snapshots.
// Cycles never overlap: triggers that arrive while one is running are folded
// into a single follow-up cycle.
type Watcher struct {
	source    ChainReader
	addresses AddressSource
	opts      Options
	log       zerolog.Logger

	snapshot   models.Snapshot
	gasHistory []models.GasPricePoint

	subscribers []Subscriber
	mu          sync.RWMutex

	cycleMu  sync.Mutex
	trigger  chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a new Watcher instance.
func NewWatcher(source ChainReader, addresses AddressSource, opts Options, logger zerolog.Logger) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Symbol == "" {
		opts.Symbol = "ETH"
	}
	if opts.GasHistoryLimit <= 0 {
		opts.GasHistoryLimit = 2880
	}
	return &Watcher{
		source:    source,
		addresses: addresses,
		opts:      opts,
		log:       logger.With().Str("component", "watcher").Logger(),
		snapshot:  models.Snapshot{Status: models.StatusIdle, Symbol: opts.Symbol},
		trigger:   make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Publish delivers event to every subscriber. Slow subscribers miss events
// rather than block the cycle.
func (w *Watcher) Publish(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			w.log.Debug().Str("event", string(event.Type)).Msg("subscriber full, event dropped")
		}
	}
}

// Start runs an initial cycle, then one per interval and one per Refresh.
func (w *Watcher) Start(ctx context.Context) {
	go w.pollingLoop(ctx)
}

// Stop stops the polling loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// Refresh asks for a cycle as soon as the current one, if any, completes.
func (w *Watcher) Refresh() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *Watcher) pollingLoop(ctx context.Context) {
	_ = w.RunCycle(ctx)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.RunCycle(ctx)
		case <-w.trigger:
			_ = w.RunCycle(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunCycle performs one update cycle and returns its failure, if any. The
// failure is also reflected in the snapshot status.
func (w *Watcher) RunCycle(ctx context.Context) error {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	start := time.Now()
	err := w.cycle(ctx)
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	metrics.Cycles.WithLabelValues(metrics.Outcome(err)).Inc()

	if err != nil {
		w.log.Warn().Err(err).Msg("dashboard update failed")
		w.update(func(s *models.Snapshot) {
			s.Status = models.StatusError
			s.StatusMessage = err.Error()
		})
		return err
	}
	w.update(func(s *models.Snapshot) {
		s.Status = models.StatusOK
		s.StatusMessage = ""
		s.LastUpdate = time.Now()
	})
	return nil
}

func (w *Watcher) cycle(ctx context.Context) error {
	addr, connected := w.addresses.Address()
	w.update(func(s *models.Snapshot) {
		s.Status = models.StatusFetching
		s.StatusMessage = ""
		s.Cycle++
		s.Connected = connected
		if connected {
			s.Address = addr.Hex()
		}
	})

	var blockHex, gasHex string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := w.source.BlockNumber(gctx)
		blockHex = v
		return err
	})
	g.Go(func() error {
		v, err := w.source.GasPrice(gctx)
		gasHex = v
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	block, err := format.HexToUint64(blockHex)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}
	gwei, err := format.FormatGwei(gasHex)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}
	w.recordGas(gasHex)
	w.update(func(s *models.Snapshot) {
		s.BlockNumber = block
		s.BlockDisplay = format.FormatInt(block)
		s.GasPriceGwei = gwei
	})

	if !connected {
		w.update(func(s *models.Snapshot) { s.Balance = "" })
		return nil
	}

	balHex, err := w.source.Balance(ctx, addr)
	if err != nil {
		return err
	}
	ether, err := format.FormatEther(balHex)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	w.update(func(s *models.Snapshot) { s.Balance = ether })
	return nil
}

func (w *Watcher) recordGas(gasHex string) {
	wei, err := format.HexToBig(gasHex)
	if err != nil {
		return
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.gasHistory = append(w.gasHistory, models.GasPricePoint{Timestamp: time.Now(), Value: gwei})
	if len(w.gasHistory) > w.opts.GasHistoryLimit {
		w.gasHistory = w.gasHistory[len(w.gasHistory)-w.opts.GasHistoryLimit:]
	}
}

func (w *Watcher) update(fn func(s *models.Snapshot)) {
	w.mu.Lock()
	fn(&w.snapshot)
	snap := w.snapshot
	w.mu.Unlock()
	w.Publish(Event{Type: EventSnapshotUpdated, Data: snap})
}

// Snapshot returns a copy of the current display state.
func (w *Watcher) Snapshot() models.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// GasHistory returns a copy of the recorded gas prices, oldest first.
func (w *Watcher) GasHistory() []models.GasPricePoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cp := make([]models.GasPricePoint, len(w.gasHistory))
	copy(cp, w.gasHistory)
	return cp
}
