package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jreinjr/dreamwalker/internal/domain"
)

func TestRates_ReferenceValues(t *testing.T) {
	prev := domain.TransportCounters{Frames: 0, Bytes: 0}
	cur := domain.TransportCounters{Frames: 30, Bytes: 375000}

	sample := Rates(prev, cur, time.Second)

	assert.InDelta(t, 30.0, sample.FPS, 1e-9)
	assert.InDelta(t, 3.0, sample.BitrateMbps, 1e-9)
}

func TestRates_ZeroElapsed(t *testing.T) {
	sample := Rates(domain.TransportCounters{}, domain.TransportCounters{Frames: 10}, 0)
	assert.Zero(t, sample.FPS)
	assert.Zero(t, sample.BitrateMbps)
}

// countingSource hands out a scripted counter sequence, one entry per tick.
type countingSource struct {
	mu      sync.Mutex
	samples []func() (domain.TransportCounters, bool)
	calls   int
}

func (c *countingSource) next() (domain.TransportCounters, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.samples) {
		last := c.samples[len(c.samples)-1]
		return last()
	}
	fn := c.samples[c.calls]
	c.calls++
	return fn()
}

func have(c domain.TransportCounters) func() (domain.TransportCounters, bool) {
	return func() (domain.TransportCounters, bool) { return c, true }
}

func missing() (domain.TransportCounters, bool) {
	return domain.TransportCounters{}, false
}

func TestSampler_PublishesAfterBaseline(t *testing.T) {
	src := &countingSource{samples: []func() (domain.TransportCounters, bool){
		have(domain.TransportCounters{Frames: 0, Bytes: 0}),
		have(domain.TransportCounters{Frames: 10, Bytes: 1000}),
		have(domain.TransportCounters{Frames: 20, Bytes: 2000}),
	}}

	var mu sync.Mutex
	var published []Sample
	s := New(5*time.Millisecond, src.next, func(sample Sample) {
		mu.Lock()
		published = append(published, sample)
		mu.Unlock()
	}, zerolog.Nop())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) >= 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, sample := range published {
		assert.GreaterOrEqual(t, sample.FPS, 0.0)
		assert.GreaterOrEqual(t, sample.BitrateMbps, 0.0)
	}
}

func TestSampler_SkipsMissingSampleWithoutResettingBaseline(t *testing.T) {
	src := &countingSource{samples: []func() (domain.TransportCounters, bool){
		have(domain.TransportCounters{Frames: 0, Bytes: 0}),
		missing,
		missing,
		have(domain.TransportCounters{Frames: 30, Bytes: 3000}),
	}}

	var mu sync.Mutex
	var published []Sample
	s := New(5*time.Millisecond, src.next, func(sample Sample) {
		mu.Lock()
		published = append(published, sample)
		mu.Unlock()
	}, zerolog.Nop())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) >= 1
	}, time.Second, time.Millisecond)

	// The first published sample is derived against the original baseline;
	// the skipped ticks must not have reset it to zero deltas.
	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, published[0].FPS, 0.0)
}

func TestSampler_StopIsSynchronousAndIdempotent(t *testing.T) {
	src := &countingSource{samples: []func() (domain.TransportCounters, bool){
		have(domain.TransportCounters{}),
	}}

	var mu sync.Mutex
	count := 0
	s := New(time.Millisecond, src.next, func(Sample) {
		mu.Lock()
		count++
		mu.Unlock()
	}, zerolog.Nop())

	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, after, count, "no publishes after Stop returns")
	mu.Unlock()

	s.Stop() // second stop is a no-op
	s.Start()
	s.Stop()
}
