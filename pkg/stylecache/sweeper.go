package stylecache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/system"
)

// Sweeper periodically evicts an idle stylesheet on a single goroutine.
type Sweeper struct {
	cache  *Cache
	period time.Duration
	log    *zap.SugaredLogger

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	ticker *time.Ticker
}

// NewSweeper runs the cache clean up every half idle window.
func NewSweeper(cache *Cache, log *zap.SugaredLogger) *Sweeper {
	period := cache.Idle() / 2
	if period <= 0 {
		period = DefaultIdle / 2
	}
	return &Sweeper{cache: cache, period: period, log: log.Named("stylecache-sweeper")}
}

// Register ties the sweeper to the host: it starts once the host has started
// and stops when the host begins shutting down.
func (s *Sweeper) Register(lc *system.Lifecycle) {
	lc.OnStarted(s.Start)
	lc.OnStopping(s.Stop)
}

// Start launches the sweeper goroutine. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.ticker = time.NewTicker(s.period)
	go s.run(s.ticker, s.stop, s.done)
	s.log.Infow("Style cache sweeper started", "period", s.period)
}

// Stop halts the sweeper and waits for its goroutine to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	stop, done, ticker := s.stop, s.done, s.ticker
	s.stop, s.done, s.ticker = nil, nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	ticker.Stop()
	close(stop)
	<-done
	s.log.Info("Style cache sweeper stopped")
}

// Running reports whether the sweeper goroutine is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Sweeper) run(ticker *time.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("panic in style cache sweeper recovered", "panic", r)
		}
	}()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.cache.CleanUp()
		}
	}
}
