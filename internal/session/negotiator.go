// Package session owns the connection state machine: it drives peer-session
// negotiation over the REST signaling exchange and reacts to transport-level
// connectivity signals.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jreinjr/dreamwalker/internal/control"
	"github.com/jreinjr/dreamwalker/internal/domain"
	"github.com/jreinjr/dreamwalker/internal/ice"
	"github.com/jreinjr/dreamwalker/internal/stats"
)

// DefaultStunURL is used when the server reports no ICE servers.
const DefaultStunURL = "stun:stun.l.google.com:19302"

// DefaultNegotiationTimeout bounds the wait for the transport's Connected
// signal after the local negotiation steps complete.
const DefaultNegotiationTimeout = 30 * time.Second

// ErrSessionActive rejects a second connect while one is in flight or live.
var ErrSessionActive = errors.New("a session is already connecting or connected")

// ErrConnectAborted is returned when a connect sequence resumes after its
// session was torn down; the in-flight result is discarded.
var ErrConnectAborted = errors.New("connect aborted: session disposed")

// Subscriber receives every state transition in dispatch order.
type Subscriber func(from, to domain.ConnectionState)

// Config wires a Negotiator.
type Config struct {
	Peers              domain.PeerFactory
	NegotiationTimeout time.Duration
	StatsInterval      time.Duration
	Logger             zerolog.Logger
}

// session bundles the resources scoped to one connect attempt.
type session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	signaler domain.Signaler
	cfg      domain.PipelineConfig
	id       string
	peer     domain.PeerSession
	control  *control.Channel
	sampler  *stats.Sampler
	buffer   *ice.Buffer
	timeout  *time.Timer
}

func (s *session) release() {
	s.cancel()
	if s.timeout != nil {
		s.timeout.Stop()
	}
	if s.sampler != nil {
		s.sampler.Stop()
	}
	if s.control != nil {
		_ = s.control.Close()
	}
	if s.peer != nil {
		_ = s.peer.Close()
	}
	s.buffer.Reset()
}

// Negotiator is the connection state machine. It owns the ConnectionState and
// at most one live session at a time.
type Negotiator struct {
	peers              domain.PeerFactory
	negotiationTimeout time.Duration
	statsInterval      time.Duration
	log                zerolog.Logger

	mu        sync.Mutex
	state     domain.ConnectionState
	sess      *session
	subs      map[int64]Subscriber
	subOrder  []int64
	nextSubID int64

	onConnected    func()
	onDisconnected func()
	onStats        func(stats.Sample)

	// dispatchMu serializes transition notifications so subscribers observe
	// at most one transition at a time, in order.
	dispatchMu sync.Mutex
}

// New creates a Negotiator in the Disconnected state.
func New(cfg Config) *Negotiator {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = stats.DefaultInterval
	}
	return &Negotiator{
		peers:              cfg.Peers,
		negotiationTimeout: cfg.NegotiationTimeout,
		statsInterval:      cfg.StatsInterval,
		log:                cfg.Logger.With().Str("component", "session").Logger(),
		state:              domain.StateDisconnected,
		subs:               make(map[int64]Subscriber),
	}
}

// State returns the current connection state.
func (n *Negotiator) State() domain.ConnectionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// SessionID returns the server-issued id of the current session, if any.
func (n *Negotiator) SessionID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sess == nil {
		return ""
	}
	return n.sess.id
}

// Subscribe registers a transition subscriber and returns its id.
func (n *Negotiator) Subscribe(fn Subscriber) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextSubID++
	id := n.nextSubID
	n.subs[id] = fn
	n.subOrder = append(n.subOrder, id)
	return id
}

// Unsubscribe removes a subscriber. No ordering guarantee relative to an
// in-flight dispatch.
func (n *Negotiator) Unsubscribe(id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, id)
}

// OnConnected registers the convenience callback fired on the first entry
// into Connected.
func (n *Negotiator) OnConnected(fn func()) {
	n.mu.Lock()
	n.onConnected = fn
	n.mu.Unlock()
}

// OnDisconnected registers the convenience callback fired on departure from
// Connected.
func (n *Negotiator) OnDisconnected(fn func()) {
	n.mu.Lock()
	n.onDisconnected = fn
	n.mu.Unlock()
}

// OnStats registers the periodic metrics callback. fn runs on the sampler
// goroutine and must not tear the session down synchronously (Disconnect,
// MarkFailed); hand teardown off to another goroutine instead.
func (n *Negotiator) OnStats(fn func(stats.Sample)) {
	n.mu.Lock()
	n.onStats = fn
	n.mu.Unlock()
}

// Connect runs the negotiation sequence against the signaling server. The
// Connected state itself is driven by the transport's connectivity signal,
// not by this method returning nil.
func (n *Negotiator) Connect(ctx context.Context, signaler domain.Signaler, cfg domain.PipelineConfig, source domain.VideoSource, sink domain.FrameSink) error {
	n.mu.Lock()
	if n.state.Active() {
		n.mu.Unlock()
		return ErrSessionActive
	}
	s := &session{signaler: signaler, cfg: cfg}
	// The session outlives the Connect call; its lifetime ends with
	// Disconnect or a failure, not with the caller's request context.
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.buffer = ice.New(signaler, n.log)
	n.sess = s
	notify := n.transitionLocked(domain.StateConnecting)
	n.mu.Unlock()
	notify()

	if err := ctx.Err(); err != nil {
		return n.fail(s, domain.NegotiationError("connect", err))
	}
	return n.negotiate(s, source, sink)
}

func (n *Negotiator) negotiate(s *session, source domain.VideoSource, sink domain.FrameSink) error {
	if err := s.signaler.Health(s.ctx); err != nil {
		return n.fail(s, domain.Unreachable("health check", err))
	}
	if !n.current(s) {
		return ErrConnectAborted
	}

	// Best effort: an unreachable or empty ICE listing falls back to a
	// public STUN entry rather than failing the connect.
	servers, err := s.signaler.IceServers(s.ctx)
	if err != nil || len(servers) == 0 {
		if err != nil {
			n.log.Warn().Err(err).Msg("ice server fetch failed, using default")
		}
		servers = []domain.IceServer{{URLs: []string{DefaultStunURL}}}
	}
	if !n.current(s) {
		return ErrConnectAborted
	}

	peer, err := n.peers(servers)
	if err != nil {
		return n.fail(s, domain.NegotiationError("create peer session", err))
	}
	if !n.adoptPeer(s, peer) {
		_ = peer.Close()
		return ErrConnectAborted
	}

	if source != nil && source.Ready() {
		if err := peer.AttachSource(source); err != nil {
			return n.fail(s, domain.NegotiationError("attach video source", err))
		}
	} else {
		// A session may run without outbound video.
		n.log.Info().Msg("no video source available, connecting receive-only")
	}

	dc, err := peer.CreateControlChannel("control")
	if err != nil {
		return n.fail(s, domain.NegotiationError("create control channel", err))
	}
	ch := control.New(dc, n.log)
	ch.OnServerStop(func() { n.handleServerStop(s) })
	n.mu.Lock()
	s.control = ch
	n.mu.Unlock()

	peer.OnIceCandidate(s.buffer.Observe)
	peer.OnStateChange(func(st domain.TransportState) { n.handleTransport(s, st) })

	offer, err := peer.CreateOffer(s.ctx)
	if err != nil {
		return n.fail(s, domain.NegotiationError("create offer", err))
	}
	if !n.current(s) {
		return ErrConnectAborted
	}

	answer, sessionID, err := s.signaler.Offer(s.ctx, offer, s.cfg.InitialParameters())
	if err != nil {
		return n.fail(s, domain.Unreachable("submit offer", err))
	}
	if !n.current(s) {
		return ErrConnectAborted
	}

	if err := peer.SetAnswer(s.ctx, answer); err != nil {
		return n.fail(s, domain.NegotiationError("set remote answer", err))
	}
	if !n.current(s) {
		return ErrConnectAborted
	}

	n.mu.Lock()
	s.id = sessionID
	n.mu.Unlock()
	n.log.Info().Str("session_id", sessionID).Msg("signaling exchange complete")

	s.buffer.Flush(s.ctx, sessionID)

	sampler := stats.New(n.statsInterval, peer.InboundVideoCounters, n.publishStats, n.log)
	n.mu.Lock()
	s.sampler = sampler
	n.mu.Unlock()
	sampler.Start()

	// Some transport stacks never fire a push "new track" event for
	// bidirectional transceivers, so always walk them explicitly. A nil sink
	// still needs the walk: the inbound tracks must be drained and counted
	// for the stats sampler.
	peer.SubscribeInboundVideo(sink)

	timer := time.AfterFunc(n.negotiationTimeout, func() { n.handleNegotiationTimeout(s) })
	n.mu.Lock()
	if n.sess == s {
		s.timeout = timer
	} else {
		timer.Stop()
	}
	n.mu.Unlock()

	return nil
}

// Disconnect tears the current session down and returns to Disconnected.
// Valid from any state; a no-op on resources that are already gone.
func (n *Negotiator) Disconnect() {
	n.mu.Lock()
	s := n.sess
	n.sess = nil
	notify := n.transitionLocked(domain.StateDisconnected)
	n.mu.Unlock()
	if s != nil {
		s.release()
	}
	notify()
}

// SendUpdate forwards a partial parameter update over the control channel.
// Dropped with a log entry unless the session is Connected.
func (n *Negotiator) SendUpdate(update domain.RuntimeParameters) {
	n.mu.Lock()
	var ch *control.Channel
	if n.state == domain.StateConnected && n.sess != nil {
		ch = n.sess.control
	}
	n.mu.Unlock()
	if ch == nil {
		n.log.Debug().Msg("not connected, dropping parameter update")
		return
	}
	ch.Send(update)
}

// SendResetCache sends the one-shot cache reset command.
func (n *Negotiator) SendResetCache() {
	n.SendUpdate(domain.RuntimeParameters{ResetCache: true})
}

// MarkFailed records a failure that happened before negotiation began, e.g.
// a remote pipeline load that errored out. Ignored while a session is in
// flight; the negotiator reports its own failures.
func (n *Negotiator) MarkFailed(err error) {
	n.mu.Lock()
	if n.state.Active() {
		n.mu.Unlock()
		return
	}
	notify := n.transitionLocked(domain.StateFailed)
	n.mu.Unlock()
	n.log.Error().Err(err).Msg("connect failed before negotiation")
	notify()
}

// current reports whether s is still the live session.
func (n *Negotiator) current(s *session) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sess == s && s.ctx.Err() == nil
}

// adoptPeer attaches the freshly created peer to s, unless s was torn down
// while the peer was being built.
func (n *Negotiator) adoptPeer(s *session, peer domain.PeerSession) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sess != s {
		return false
	}
	s.peer = peer
	return true
}

// detach removes s as the live session; false means a concurrent teardown
// already claimed it and this caller must not touch its resources.
func (n *Negotiator) detach(s *session) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sess != s {
		return false
	}
	n.sess = nil
	return true
}

func (n *Negotiator) fail(s *session, err error) error {
	if !n.detach(s) {
		// The session was superseded or disposed mid-sequence; the caller's
		// result is discarded without a state change.
		return ErrConnectAborted
	}
	s.release()
	n.log.Error().Err(err).Msg("session failed")
	n.setState(domain.StateFailed)
	return err
}

func (n *Negotiator) handleTransport(s *session, st domain.TransportState) {
	switch st {
	case domain.TransportConnected:
		n.mu.Lock()
		live := n.sess == s && n.state == domain.StateConnecting
		if live && s.timeout != nil {
			s.timeout.Stop()
		}
		var notify func()
		if live {
			notify = n.transitionLocked(domain.StateConnected)
		}
		n.mu.Unlock()
		if live {
			n.log.Info().Str("session_id", s.id).Msg("transport connected")
			notify()
		}
	case domain.TransportFailed:
		if n.detach(s) {
			s.release()
			n.log.Error().Str("session_id", s.id).Msg("transport failure")
			n.setState(domain.StateFailed)
		}
	case domain.TransportDisconnected:
		if n.detach(s) {
			s.release()
			n.log.Info().Str("session_id", s.id).Msg("transport closed")
			n.setState(domain.StateDisconnected)
		}
	}
}

// handleServerStop reacts to the control channel's stream-stopped message. A
// deliberate stop from the server tears down like a failure but lands in
// Disconnected.
func (n *Negotiator) handleServerStop(s *session) {
	if !n.detach(s) {
		return
	}
	s.release()
	n.log.Info().Str("session_id", s.id).Msg("server ended the stream")
	n.setState(domain.StateDisconnected)
}

func (n *Negotiator) handleNegotiationTimeout(s *session) {
	n.mu.Lock()
	expired := n.sess == s && n.state == domain.StateConnecting
	n.mu.Unlock()
	if !expired {
		return
	}
	if !n.detach(s) {
		return
	}
	s.release()
	n.log.Error().
		Dur("timeout", n.negotiationTimeout).
		Msg("transport never reported connected")
	n.setState(domain.StateFailed)
}

func (n *Negotiator) publishStats(sample stats.Sample) {
	n.mu.Lock()
	fn := n.onStats
	n.mu.Unlock()
	if fn != nil {
		fn(sample)
	}
}

// transitionLocked mutates the state under n.mu and returns the notification
// closure to run after unlocking.
func (n *Negotiator) transitionLocked(to domain.ConnectionState) func() {
	from := n.state
	n.state = to

	subs := make([]Subscriber, 0, len(n.subOrder))
	for _, id := range n.subOrder {
		if fn, ok := n.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	connectedEdge := to == domain.StateConnected && from != domain.StateConnected
	disconnectedEdge := from == domain.StateConnected && to != domain.StateConnected
	onConnected, onDisconnected := n.onConnected, n.onDisconnected

	return func() {
		n.dispatchMu.Lock()
		defer n.dispatchMu.Unlock()
		for _, fn := range subs {
			fn(from, to)
		}
		if connectedEdge && onConnected != nil {
			onConnected()
		}
		if disconnectedEdge && onDisconnected != nil {
			onDisconnected()
		}
	}
}

func (n *Negotiator) setState(to domain.ConnectionState) {
	n.mu.Lock()
	notify := n.transitionLocked(to)
	n.mu.Unlock()
	notify()
}
