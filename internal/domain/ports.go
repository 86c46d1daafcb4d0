package domain

import "context"

// Signaler is the REST signaling surface consumed by the session layer.
type Signaler interface {
	Health(ctx context.Context) error
	IceServers(ctx context.Context) ([]IceServer, error)
	Offer(ctx context.Context, sdp string, params InitialParameters) (answerSDP, sessionID string, err error)
	PatchCandidates(ctx context.Context, sessionID string, candidates []IceCandidate) error
	LoadPipeline(ctx context.Context, req PipelineLoadRequest) error
	PipelineStatus(ctx context.Context) (PipelineStatus, error)
	ListAdapters(ctx context.Context) ([]AdapterInfo, error)
}

// DataChannel is a reliable ordered message channel multiplexed alongside
// media. Callbacks fire on the transport's goroutine.
type DataChannel interface {
	Label() string
	IsOpen() bool
	SendText(msg string) error
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	Close() error
}

// FrameSink receives inbound video frame payloads. Decoding and rendering
// happen outside this module.
type FrameSink interface {
	OnFrame(payload []byte)
}

// VideoSource is an outbound media source provided by the capture layer. The
// peer-session implementation knows how to attach its concrete type; this
// core only checks availability and passes it through by reference.
type VideoSource interface {
	Ready() bool
}

// TransportCounters is a point-in-time snapshot of raw inbound counters.
type TransportCounters struct {
	Frames uint64
	Bytes  uint64
}

// PeerSession is the abstract peer-transport capability. One instance per
// negotiated session; Close releases everything it owns.
type PeerSession interface {
	// AttachSource adds an outbound video track built from src.
	AttachSource(src VideoSource) error
	// CreateControlChannel opens a reliable ordered data channel. Must be
	// called before CreateOffer so the channel is part of the negotiation.
	CreateControlChannel(label string) (DataChannel, error)
	CreateOffer(ctx context.Context) (string, error)
	SetAnswer(ctx context.Context, sdp string) error
	// OnIceCandidate registers the callback for locally discovered candidates.
	OnIceCandidate(fn func(IceCandidate))
	// OnStateChange registers the connectivity-state callback.
	OnStateChange(fn func(TransportState))
	// SubscribeInboundVideo walks the negotiated transceivers and attaches
	// sink to every inbound video track. Safe to call after SetAnswer. A nil
	// sink is allowed: the tracks are still drained and counted.
	SubscribeInboundVideo(sink FrameSink)
	// InboundVideoCounters reports raw frame/byte counters for the inbound
	// video stream; ok is false while no stream is flowing yet.
	InboundVideoCounters() (c TransportCounters, ok bool)
	Close() error
}

// PeerFactory creates a PeerSession from resolved ICE configuration.
type PeerFactory func(iceServers []IceServer) (PeerSession, error)
