package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/models"
)

var errNoData = errors.New("no ltp data in quote response")

// Supervisor spawns one trailing-stop monitor per filled position and tracks
// their lifecycle. Monitors run concurrently with each other and with any
// subsequent scan cycle.
type Supervisor struct {
	broker       broker.Broker
	logger       *log.Logger
	stopLossPct  float64
	pollInterval time.Duration
	stop         chan struct{}
	stopOnce     sync.Once

	group *errgroup.Group

	mu        sync.RWMutex
	positions map[string]models.Position // latest snapshot per position ID
	onClose   func(models.Position)      // invoked when a position closes, may be nil
}

// NewSupervisor creates a supervisor. onClose, if non-nil, receives each
// closed position exactly once (used to persist exits to the run ledger).
func NewSupervisor(b broker.Broker, stopLossPct float64, pollInterval time.Duration,
	onClose func(models.Position), logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{
		broker:       b,
		logger:       logger,
		stopLossPct:  stopLossPct,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
		group:        &errgroup.Group{},
		positions:    make(map[string]models.Position),
		onClose:      onClose,
	}
}

// Spawn creates a position from a filled execution record and starts its
// monitor goroutine. Records without an order ID never spawn a monitor.
func (s *Supervisor) Spawn(ctx context.Context, id string, record models.ExecutionRecord) error {
	pos, err := models.NewPosition(id, record, s.stopLossPct)
	if err != nil {
		return err
	}

	m := NewTrailingStopMonitor(s.broker, s.stopLossPct, s.pollInterval, s.stop, s.track, s.logger)
	s.group.Go(func() error {
		m.Run(ctx, pos)
		return nil
	})
	return nil
}

// track records the latest snapshot of a position and forwards closes.
func (s *Supervisor) track(pos models.Position) {
	s.mu.Lock()
	s.positions[pos.ID] = pos
	s.mu.Unlock()

	if pos.State == models.StateClosed && s.onClose != nil {
		s.onClose(pos)
	}
}

// Positions returns a copy of the latest snapshots, for the dashboard.
func (s *Supervisor) Positions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}

// ActiveCount returns the number of positions still being polled.
func (s *Supervisor) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.positions {
		if p.State == models.StateActive {
			n++
		}
	}
	return n
}

// Shutdown signals all monitors to stop polling between ticks. Positions
// remain open at the broker; there is no forced liquidation.
func (s *Supervisor) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wait blocks until every spawned monitor has returned.
func (s *Supervisor) Wait() {
	// Monitors never return errors; the group is used for joining only.
	_ = s.group.Wait()
}
