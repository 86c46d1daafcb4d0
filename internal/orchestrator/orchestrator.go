// Package orchestrator sequences the top-level use cases: connect, disconnect,
// pipeline switch, and live parameter updates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jreinjr/dreamwalker/internal/domain"
	"github.com/jreinjr/dreamwalker/internal/session"
)

// DefaultPollInterval paces the pipeline load-status polls.
const DefaultPollInterval = 500 * time.Millisecond

var (
	// ErrOperationInFlight rejects a connect or switch while one is running.
	ErrOperationInFlight = errors.New("a connect or switch is already in flight")
	// ErrSourceNotReady aborts a switch whose video source went away.
	ErrSourceNotReady = errors.New("video source not ready")
)

// SignalerFactory builds the REST signaling client for a server URL.
type SignalerFactory func(serverURL string) domain.Signaler

// Orchestrator coordinates the signaling client and the session negotiator.
// It owns no connection state itself; that stays with the negotiator.
type Orchestrator struct {
	negotiator   *session.Negotiator
	newSignaler  SignalerFactory
	pollInterval time.Duration
	log          zerolog.Logger

	mu        sync.Mutex
	inFlight  bool
	opCancel  context.CancelFunc
	serverURL string
	signaler  domain.Signaler
	config    domain.PipelineConfig
	// pendingPipeline is a switch requested while disconnected; it overrides
	// the pipeline id of the next Connect.
	pendingPipeline string
	source          domain.VideoSource
	sink            domain.FrameSink
}

// New creates an orchestrator around an existing negotiator.
func New(negotiator *session.Negotiator, newSignaler SignalerFactory, pollInterval time.Duration, log zerolog.Logger) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		negotiator:   negotiator,
		newSignaler:  newSignaler,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "orchestrator").Logger(),
	}
}

// SetVideoSource injects the outbound media source. Read-only to this core;
// reused across pipeline switches.
func (o *Orchestrator) SetVideoSource(src domain.VideoSource) {
	o.mu.Lock()
	o.source = src
	o.mu.Unlock()
}

// SetFrameSink injects the inbound frame sink.
func (o *Orchestrator) SetFrameSink(sink domain.FrameSink) {
	o.mu.Lock()
	o.sink = sink
	o.mu.Unlock()
}

// Connect validates the inputs, prepares the remote pipeline, and hands over
// to the negotiator. Rejected while another connect or switch is running, and
// rejected before any signaling call while a session is already live:
// reloading the remote pipeline under an established session would break it.
func (o *Orchestrator) Connect(ctx context.Context, serverURL string, cfg domain.PipelineConfig) error {
	if err := validate(serverURL, cfg); err != nil {
		return err
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrOperationInFlight
	}
	if o.negotiator.State().Active() {
		o.mu.Unlock()
		return session.ErrSessionActive
	}
	o.inFlight = true
	opCtx, cancel := context.WithCancel(ctx)
	o.opCancel = cancel
	o.serverURL = serverURL
	o.signaler = o.newSignaler(serverURL)
	if o.pendingPipeline != "" {
		cfg.PipelineID = o.pendingPipeline
		o.pendingPipeline = ""
	}
	o.config = cfg
	signaler, source, sink := o.signaler, o.source, o.sink
	o.mu.Unlock()
	defer o.end(cancel)

	o.log.Info().Str("server", serverURL).Str("pipeline", cfg.PipelineID).Msg("connecting")
	return o.establish(opCtx, signaler, cfg, source, sink)
}

// Disconnect cancels any in-flight connect or switch and tears the session
// down. Always succeeds.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	if o.opCancel != nil {
		o.opCancel()
	}
	o.mu.Unlock()
	o.negotiator.Disconnect()
}

// SwitchPipeline reloads the remote pipeline and reconnects. While not
// connected it only records the id for the next Connect.
func (o *Orchestrator) SwitchPipeline(ctx context.Context, pipelineID string) error {
	if pipelineID == "" {
		return fmt.Errorf("validate: pipeline id is required")
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrOperationInFlight
	}
	if o.negotiator.State() != domain.StateConnected {
		o.pendingPipeline = pipelineID
		o.mu.Unlock()
		o.log.Info().Str("pipeline", pipelineID).Msg("not connected, recorded for next connect")
		return nil
	}
	o.inFlight = true
	opCtx, cancel := context.WithCancel(ctx)
	o.opCancel = cancel
	cfg := o.config
	cfg.PipelineID = pipelineID
	signaler, source, sink := o.signaler, o.source, o.sink
	o.mu.Unlock()
	defer o.end(cancel)

	o.log.Info().Str("pipeline", pipelineID).Msg("switching pipeline")
	o.negotiator.Disconnect()

	if source != nil && !source.Ready() {
		o.negotiator.MarkFailed(ErrSourceNotReady)
		return ErrSourceNotReady
	}

	if err := o.establish(opCtx, signaler, cfg, source, sink); err != nil {
		return err
	}
	o.mu.Lock()
	o.config = cfg
	o.mu.Unlock()
	return nil
}

// UpdateParameters forwards a partial update over the control channel. It is
// silently dropped unless a session is connected; a partial update has no
// meaning before a session exists.
func (o *Orchestrator) UpdateParameters(update domain.RuntimeParameters) {
	o.negotiator.SendUpdate(update)
}

// ResetCache sends the one-shot cache reset command.
func (o *Orchestrator) ResetCache() {
	o.negotiator.SendResetCache()
}

// ListStyleAdapters fetches the adapter files available on the server last
// connected to (or being connected to).
func (o *Orchestrator) ListStyleAdapters(ctx context.Context) ([]domain.AdapterInfo, error) {
	o.mu.Lock()
	signaler := o.signaler
	o.mu.Unlock()
	if signaler == nil {
		return nil, fmt.Errorf("list adapters: no server configured")
	}
	return signaler.ListAdapters(ctx)
}

// establish runs health check, pipeline load, status polling, and the
// negotiation handoff. Stage failures abort the rest and drive Failed.
func (o *Orchestrator) establish(ctx context.Context, signaler domain.Signaler, cfg domain.PipelineConfig, source domain.VideoSource, sink domain.FrameSink) error {
	if err := signaler.Health(ctx); err != nil {
		serr := domain.Unreachable("health check", err)
		o.negotiator.MarkFailed(serr)
		return serr
	}

	if err := signaler.LoadPipeline(ctx, cfg.LoadRequest()); err != nil {
		serr := domain.Unreachable("load pipeline", err)
		o.negotiator.MarkFailed(serr)
		return serr
	}

	if err := o.awaitPipeline(ctx, signaler); err != nil {
		o.negotiator.MarkFailed(err)
		return err
	}

	return o.negotiator.Connect(ctx, signaler, cfg, source, sink)
}

// awaitPipeline polls load status until a terminal state. There is no retry
// bound; only Error or caller cancellation stops the loop.
func (o *Orchestrator) awaitPipeline(ctx context.Context, signaler domain.Signaler) error {
	for {
		status, err := signaler.PipelineStatus(ctx)
		if err != nil {
			return domain.Unreachable("pipeline status", err)
		}
		switch status.State {
		case domain.PipelineLoaded:
			o.log.Info().Msg("pipeline loaded")
			return nil
		case domain.PipelineError:
			return domain.RemoteConfigError("pipeline load", errors.New(status.Message))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}

func (o *Orchestrator) end(cancel context.CancelFunc) {
	cancel()
	o.mu.Lock()
	o.inFlight = false
	o.opCancel = nil
	o.mu.Unlock()
}

func validate(serverURL string, cfg domain.PipelineConfig) error {
	if serverURL == "" {
		return fmt.Errorf("validate: server url is required")
	}
	if cfg.PipelineID == "" {
		return fmt.Errorf("validate: pipeline id is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("validate: output dimensions are required")
	}
	return nil
}
