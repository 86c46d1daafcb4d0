// Package stats turns raw inbound transport counters into rate metrics.
package stats

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jreinjr/dreamwalker/internal/domain"
)

// DefaultInterval is the sampling cadence while a session is connected.
const DefaultInterval = time.Second

// Sample is one derived metrics pair.
type Sample struct {
	FPS         float64
	BitrateMbps float64
}

// Rates derives a Sample from two counter snapshots and the elapsed time
// between them.
func Rates(prev, cur domain.TransportCounters, elapsed time.Duration) Sample {
	sec := elapsed.Seconds()
	if sec <= 0 {
		return Sample{}
	}
	return Sample{
		FPS:         float64(cur.Frames-prev.Frames) / sec,
		BitrateMbps: float64(cur.Bytes-prev.Bytes) * 8 / sec / 1e6,
	}
}

// Source pulls a point-in-time counter snapshot; ok is false while no inbound
// stream is flowing yet.
type Source func() (c domain.TransportCounters, ok bool)

// Sampler periodically publishes rate metrics derived from a Source. One
// sampler per session; Stop is synchronous so a successor can never overlap.
type Sampler struct {
	interval time.Duration
	source   Source
	publish  func(Sample)
	log      zerolog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a stopped sampler. publish is called on the sampler goroutine.
func New(interval time.Duration, source Source, publish func(Sample), log zerolog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{
		interval: interval,
		source:   source,
		publish:  publish,
		log:      log.With().Str("component", "stats").Logger(),
	}
}

// Start begins sampling. No-op if already running.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
}

// Stop halts sampling and waits for the sampler goroutine to exit. Idempotent.
// Must not be called from the publish callback: publish runs on the sampler
// goroutine, so waiting for it from inside it would never return.
func (s *Sampler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Sampler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var (
		prev     domain.TransportCounters
		prevAt   time.Time
		baseline bool
	)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cur, ok := s.source()
			if !ok {
				// No inbound stream yet; keep the baseline untouched.
				continue
			}
			now := time.Now()
			if !baseline {
				prev, prevAt, baseline = cur, now, true
				continue
			}
			sample := Rates(prev, cur, now.Sub(prevAt))
			prev, prevAt = cur, now
			s.publish(sample)
		}
	}
}
