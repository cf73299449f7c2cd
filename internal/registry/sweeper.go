package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/woozymasta/warden/internal/logger"
)

// LivenessSweeper periodically evicts members whose last heartbeat is older
// than the liveness timeout.
type LivenessSweeper struct {
	table    *MembershipTable
	now      func() time.Time
	onEvict  func(ServerRecord, time.Time)
	stop     chan struct{}
	log      zerolog.Logger
	wg       sync.WaitGroup
	timeout  time.Duration
	interval time.Duration
	delay    time.Duration
	start    sync.Once
	halt     sync.Once
}

// NewLivenessSweeper creates a stopped sweeper. onEvict, if set, is called for
// every evicted record from the sweeper goroutine with the sweep time.
func NewLivenessSweeper(table *MembershipTable, opts Options, now func() time.Time, onEvict func(ServerRecord, time.Time)) *LivenessSweeper {
	if now == nil {
		now = time.Now
	}

	return &LivenessSweeper{
		table:    table,
		now:      now,
		onEvict:  onEvict,
		timeout:  opts.LivenessTimeout,
		interval: opts.SweepInterval,
		delay:    opts.SweepDelay,
		stop:     make(chan struct{}),
		log:      logger.Component("sweeper"),
	}
}

// Start launches the sweep loop. Calling it more than once has no effect.
func (s *LivenessSweeper) Start() {
	s.start.Do(func() {
		s.wg.Add(1)
		go s.loop()
	})
}

// Stop terminates the loop and waits for an in-flight sweep to finish.
// It is safe to call multiple times and without Start.
func (s *LivenessSweeper) Stop() {
	s.halt.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *LivenessSweeper) loop() {
	defer s.wg.Done()

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	s.log.Debug().
		Dur("interval", s.interval).
		Dur("timeout", s.timeout).
		Msg("Liveness sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Sweep evicts every record with now - LastHeartbeat > timeout and returns them.
func (s *LivenessSweeper) Sweep(now time.Time) []ServerRecord {
	cutoff := now.Add(-s.timeout)

	var evicted []ServerRecord
	for _, rec := range s.table.Snapshot() {
		if !rec.LastHeartbeat.Before(cutoff) {
			continue
		}

		removed, ok := s.table.EvictStale(rec.Category, rec.ID, cutoff)
		if !ok {
			continue
		}
		evicted = append(evicted, removed)

		s.log.Info().
			Str("category", removed.Category.String()).
			Int("id", removed.ID).
			Str("name", removed.Name).
			Dur("silent", now.Sub(removed.LastHeartbeat)).
			Msg("Server expired")

		if s.onEvict != nil {
			s.onEvict(removed, now)
		}
	}

	return evicted
}
