// Package market maintains the shared market-data fabric: a single
// background refresh task polls upstream price/gas sources, builds an
// immutable MarketCondition snapshot, atomically swaps it into a shared
// slot, and fans the update out to subscribers.
package market

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"go.uber.org/zap"
)

// PriceSource is the upstream collaborator MarketData polls for the raw
// inputs of a MarketCondition snapshot: token prices, liquidity levels and
// gas pricing.
type PriceSource interface {
	// Snapshot returns the current set of data needed to build a
	// MarketCondition. Implementations are expected to aggregate prices
	// across configured PriceProviders internally.
	Snapshot(ctx context.Context) (types.MarketCondition, error)
}

// Subscription is returned by Subscribe and can be used to unsubscribe.
type Subscription struct {
	id int64
	m  *MarketData
}

// Unsubscribe removes the subscription; safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.subscribers, s.id)
}

type subscriber struct {
	ch chan types.MarketCondition
}

// MarketData exposes Current/Subscribe/Start/Stop over the snapshot slot.
// Refreshes never overlap (the loop is a single goroutine); a slow
// upstream simply delays the next tick rather than running concurrently
// with itself.
type MarketData struct {
	source PriceSource
	log    *logger.Logger

	snapshot atomic.Value // holds types.MarketCondition

	mu          sync.Mutex
	subscribers map[int64]subscriber
	nextSubID   int64

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a MarketData with an initial empty snapshot.
func New(source PriceSource, log *logger.Logger) *MarketData {
	m := &MarketData{
		source:      source,
		log:         log,
		subscribers: make(map[int64]subscriber),
	}
	m.snapshot.Store(types.MarketCondition{Timestamp: time.Now()})
	return m
}

// Current returns the latest MarketCondition snapshot (a non-blocking read).
func (m *MarketData) Current() types.MarketCondition {
	return m.snapshot.Load().(types.MarketCondition)
}

// Subscribe registers ch to receive every refreshed MarketCondition,
// delivered FIFO per subscriber (no ordering guarantee across
// subscribers). The channel is supplied by the caller and sends never block
// the refresh loop: if a buffered channel is still full on the next tick,
// the newest snapshot replaces the buffered one; on an unbuffered channel
// an update is dropped when no receiver is waiting.
func (m *MarketData) Subscribe(ch chan types.MarketCondition) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = subscriber{ch: ch}
	return &Subscription{id: id, m: m}
}

// Start launches the background refresh loop at refreshInterval. It is an
// error to call Start twice without an intervening Stop.
func (m *MarketData) Start(ctx context.Context, refreshInterval time.Duration) error {
	if m.cancel != nil {
		return types.NewError(types.ErrConfig, "market: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.refreshLoop(runCtx, refreshInterval)
	return nil
}

// Stop signals the refresh task and waits for it to finish, then drops
// all subscriptions.
func (m *MarketData) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil

	m.mu.Lock()
	m.subscribers = make(map[int64]subscriber)
	m.mu.Unlock()
}

func (m *MarketData) refreshLoop(ctx context.Context, interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshOnce(ctx)
		}
	}
}

// refreshOnce performs a single, non-overlapping refresh. Failures are
// logged and the prior snapshot remains valid.
func (m *MarketData) refreshOnce(ctx context.Context) {
	condition, err := m.source.Snapshot(ctx)
	if err != nil {
		m.log.Warn("market: refresh failed, keeping prior snapshot", zap.Error(err))
		return
	}
	condition.Timestamp = time.Now()
	m.snapshot.Store(condition)
	m.fanOut(condition)
}

func (m *MarketData) fanOut(condition types.MarketCondition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subscribers {
		select {
		case sub.ch <- condition:
		default:
			// Drain the stale buffered value and replace it so a slow
			// subscriber always sees the newest snapshot, never blocks us.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- condition:
			default:
			}
		}
	}
}
