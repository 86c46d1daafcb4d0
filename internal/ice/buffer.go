// Package ice buffers locally discovered ICE candidates until the signaling
// exchange has produced a session id, then trickles them to the server.
package ice

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jreinjr/dreamwalker/internal/domain"
)

// Buffer holds candidates observed before the initial flush. After Flush it
// forwards each new candidate as a singleton batch. Scoped to one session;
// Reset returns it to the buffering state for the next one.
type Buffer struct {
	signaler domain.Signaler
	log      zerolog.Logger

	mu        sync.Mutex
	ctx       context.Context
	sessionID string
	flushed   bool
	pending   []domain.IceCandidate
}

// New creates an empty buffer in the buffering state.
func New(signaler domain.Signaler, log zerolog.Logger) *Buffer {
	return &Buffer{
		signaler: signaler,
		log:      log.With().Str("component", "ice").Logger(),
	}
}

// Observe records or forwards one locally discovered candidate. A lost
// trickle candidate degrades connectivity quality but never aborts the
// session, so forwarding failures are logged and dropped.
func (b *Buffer) Observe(c domain.IceCandidate) {
	b.mu.Lock()
	if !b.flushed {
		b.pending = append(b.pending, c)
		n := len(b.pending)
		b.mu.Unlock()
		b.log.Debug().Int("pending", n).Msg("buffered candidate")
		return
	}
	ctx, sessionID := b.ctx, b.sessionID
	b.mu.Unlock()

	if err := b.signaler.PatchCandidates(ctx, sessionID, []domain.IceCandidate{c}); err != nil {
		b.log.Warn().Err(err).Msg("trickle candidate failed")
	}
}

// Flush sends everything buffered so far as one batch and switches the buffer
// to forwarding mode. At most one flush happens per session; later calls are
// no-ops. The pending set is cleared whether or not the batch made it.
func (b *Buffer) Flush(ctx context.Context, sessionID string) {
	b.mu.Lock()
	if b.flushed {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.ctx = ctx
	b.sessionID = sessionID
	b.flushed = true
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := b.signaler.PatchCandidates(ctx, sessionID, batch); err != nil {
		b.log.Warn().Err(err).Int("count", len(batch)).Msg("candidate flush failed")
		return
	}
	b.log.Debug().Int("count", len(batch)).Msg("flushed candidates")
}

// Reset clears all state for the next session.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctx = nil
	b.sessionID = ""
	b.flushed = false
	b.pending = nil
}
