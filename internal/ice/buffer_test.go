package ice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jreinjr/dreamwalker/internal/domain"
)

// recordingSignaler records candidate patches; the other signaling operations
// are unused by the buffer.
type recordingSignaler struct {
	mu      sync.Mutex
	patches [][]domain.IceCandidate
	ids     []string
	err     error
}

func (r *recordingSignaler) PatchCandidates(_ context.Context, sessionID string, candidates []domain.IceCandidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, candidates)
	r.ids = append(r.ids, sessionID)
	return r.err
}

func (r *recordingSignaler) batches() [][]domain.IceCandidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.IceCandidate(nil), r.patches...)
}

func (r *recordingSignaler) Health(context.Context) error { return nil }
func (r *recordingSignaler) IceServers(context.Context) ([]domain.IceServer, error) {
	return nil, nil
}
func (r *recordingSignaler) Offer(context.Context, string, domain.InitialParameters) (string, string, error) {
	return "", "", nil
}
func (r *recordingSignaler) LoadPipeline(context.Context, domain.PipelineLoadRequest) error {
	return nil
}
func (r *recordingSignaler) PipelineStatus(context.Context) (domain.PipelineStatus, error) {
	return domain.PipelineStatus{}, nil
}
func (r *recordingSignaler) ListAdapters(context.Context) ([]domain.AdapterInfo, error) {
	return nil, nil
}

func cand(s string) domain.IceCandidate {
	return domain.IceCandidate{Candidate: s, SDPMid: "0"}
}

func TestBuffer_HoldsCandidatesUntilFlush(t *testing.T) {
	sig := &recordingSignaler{}
	b := New(sig, zerolog.Nop())

	b.Observe(cand("a"))
	b.Observe(cand("b"))
	assert.Empty(t, sig.batches(), "nothing may be sent before a session id exists")

	b.Flush(context.Background(), "sess-1")

	batches := sig.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []domain.IceCandidate{cand("a"), cand("b")}, batches[0])
	assert.Equal(t, "sess-1", sig.ids[0])
}

func TestBuffer_EmptyFlushSkipsNetworkCall(t *testing.T) {
	sig := &recordingSignaler{}
	b := New(sig, zerolog.Nop())

	b.Flush(context.Background(), "sess-1")
	assert.Empty(t, sig.batches())

	// Still counts as flushed: the next candidate goes straight through.
	b.Observe(cand("late"))
	batches := sig.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []domain.IceCandidate{cand("late")}, batches[0])
}

func TestBuffer_FlushHappensOnce(t *testing.T) {
	sig := &recordingSignaler{}
	b := New(sig, zerolog.Nop())
	b.Observe(cand("a"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Flush(context.Background(), "sess-1")
		}()
	}
	wg.Wait()

	assert.Len(t, sig.batches(), 1, "at most one flush batch per session")
}

func TestBuffer_ForwardsSingletonsAfterFlush(t *testing.T) {
	sig := &recordingSignaler{}
	b := New(sig, zerolog.Nop())
	b.Flush(context.Background(), "sess-1")

	b.Observe(cand("x"))
	b.Observe(cand("y"))

	batches := sig.batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 1)
}

func TestBuffer_FlushFailureIsSwallowedAndClears(t *testing.T) {
	sig := &recordingSignaler{err: errors.New("network down")}
	b := New(sig, zerolog.Nop())
	b.Observe(cand("a"))

	b.Flush(context.Background(), "sess-1")
	require.Len(t, sig.batches(), 1)

	// The pending set is gone and the buffer is in forwarding mode.
	b.Observe(cand("b"))
	batches := sig.batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []domain.IceCandidate{cand("b")}, batches[1])
}

func TestBuffer_ResetReturnsToBuffering(t *testing.T) {
	sig := &recordingSignaler{}
	b := New(sig, zerolog.Nop())
	b.Flush(context.Background(), "sess-1")

	b.Reset()
	b.Observe(cand("next-session"))
	assert.Empty(t, sig.batches(), "candidates buffer again after Reset")
}
