package control

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jreinjr/dreamwalker/internal/domain"
)

// fakeDataChannel is an in-memory domain.DataChannel.
type fakeDataChannel struct {
	mu        sync.Mutex
	open      bool
	sent      []string
	onMessage func([]byte)
	closed    bool
}

func (f *fakeDataChannel) Label() string { return "control" }
func (f *fakeDataChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}
func (f *fakeDataChannel) SendText(msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeDataChannel) OnOpen(fn func()) {}
func (f *fakeDataChannel) OnMessage(fn func(data []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = fn
}
func (f *fakeDataChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDataChannel) inject(msg string) {
	f.mu.Lock()
	fn := f.onMessage
	f.mu.Unlock()
	fn([]byte(msg))
}

func (f *fakeDataChannel) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestSend_ResetCacheOnlySerializesSingleField(t *testing.T) {
	dc := &fakeDataChannel{open: true}
	ch := New(dc, zerolog.Nop())

	ch.SendResetCache()

	sent := dc.sentMessages()
	require.Len(t, sent, 1)
	// No defaults may leak into a partial update.
	assert.JSONEq(t, `{"reset_cache":true}`, sent[0])
}

func TestSend_OmitsUnsetFields(t *testing.T) {
	dc := &fakeDataChannel{open: true}
	ch := New(dc, zerolog.Nop())

	paused := true
	ch.Send(domain.RuntimeParameters{Paused: &paused})

	sent := dc.sentMessages()
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{"paused":true}`, sent[0])
}

func TestSend_FullUpdateRoundTrips(t *testing.T) {
	dc := &fakeDataChannel{open: true}
	ch := New(dc, zerolog.Nop())

	noise := 0.8
	steps := 4
	ch.Send(domain.RuntimeParameters{
		Prompts:         []domain.Prompt{{Text: "forest at dusk", Weight: 1.0}},
		TransitionSteps: &steps,
		NoiseScale:      &noise,
		TIndexList:      []int{0, 16, 32},
		AdapterScales:   map[string]float64{"ink": 0.5},
	})

	sent := dc.sentMessages()
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{
		"prompts":[{"text":"forest at dusk","weight":1}],
		"transition_steps":4,
		"noise_scale":0.8,
		"t_index_list":[0,16,32],
		"adapter_scales":{"ink":0.5}
	}`, sent[0])
}

func TestSend_DroppedWhileClosed(t *testing.T) {
	dc := &fakeDataChannel{open: false}
	ch := New(dc, zerolog.Nop())

	ch.SendResetCache()

	assert.Empty(t, dc.sentMessages(), "a closed channel turns Send into a no-op")
}

func TestDispatch_StreamStoppedNotification(t *testing.T) {
	dc := &fakeDataChannel{open: true}
	ch := New(dc, zerolog.Nop())

	stopped := 0
	ch.OnServerStop(func() { stopped++ })

	dc.inject(`{"type":"stream_stopped"}`)
	assert.Equal(t, 1, stopped)

	// Bare-token frames are accepted too.
	dc.inject("stream_stopped")
	assert.Equal(t, 2, stopped)
}

func TestDispatch_IgnoresUnrelatedMessages(t *testing.T) {
	dc := &fakeDataChannel{open: true}
	ch := New(dc, zerolog.Nop())

	stopped := 0
	ch.OnServerStop(func() { stopped++ })

	dc.inject(`{"type":"progress","value":0.4}`)
	dc.inject("not json at all")
	assert.Zero(t, stopped)
}
