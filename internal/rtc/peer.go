// Package rtc implements the abstract peer-session capability on top of pion.
package rtc

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/jreinjr/dreamwalker/internal/domain"
)

var (
	apiOnce   sync.Once
	sharedAPI *pion.API
	apiErr    error
)

// transportAPI builds the process-wide pion API exactly once: media engine
// with H264 registered, nack responder interceptor.
func transportAPI() (*pion.API, error) {
	apiOnce.Do(func() {
		m := &pion.MediaEngine{}
		h264 := pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:    pion.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			},
			PayloadType: 102,
		}
		if err := m.RegisterCodec(h264, pion.RTPCodecTypeVideo); err != nil {
			apiErr = fmt.Errorf("register H264: %w", err)
			return
		}

		reg := &interceptor.Registry{}
		responder, err := nack.NewResponderInterceptor()
		if err != nil {
			apiErr = fmt.Errorf("create nack responder: %w", err)
			return
		}
		reg.Add(responder)

		sharedAPI = pion.NewAPI(
			pion.WithMediaEngine(m),
			pion.WithInterceptorRegistry(reg),
		)
	})
	return sharedAPI, apiErr
}

// Peer wraps a pion PeerConnection behind domain.PeerSession.
type Peer struct {
	pc  *pion.PeerConnection
	log zerolog.Logger

	frames    atomic.Uint64
	bytes     atomic.Uint64
	hasStream atomic.Bool

	mu      sync.Mutex
	pumping map[*pion.TrackRemote]struct{}
}

// Factory returns a domain.PeerFactory backed by pion.
func Factory(log zerolog.Logger) domain.PeerFactory {
	return func(servers []domain.IceServer) (domain.PeerSession, error) {
		return NewPeer(servers, log)
	}
}

// NewPeer creates a peer connection with the resolved ICE configuration and a
// sendrecv video transceiver.
func NewPeer(iceServers []domain.IceServer, log zerolog.Logger) (*Peer, error) {
	api, err := transportAPI()
	if err != nil {
		return nil, err
	}

	var servers []pion.ICEServer
	for _, s := range iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:      pc,
		log:     log.With().Str("component", "rtc").Logger(),
		pumping: make(map[*pion.TrackRemote]struct{}),
	}

	// The video transceiver is sendrecv: the processed stream always comes
	// back; the outbound leg goes unused when no source is attached.
	if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add video transceiver: %w", err)
	}

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.Debug().Str("ice_state", state.String()).Msg("ICE state")
	})

	return p, nil
}

// AttachSource adds the outbound video track. The source must be a
// *TrackSource built by this package.
func (p *Peer) AttachSource(src domain.VideoSource) error {
	ts, ok := src.(*TrackSource)
	if !ok {
		return fmt.Errorf("attach source: unsupported source type %T", src)
	}
	if _, err := p.pc.AddTrack(ts.track); err != nil {
		return fmt.Errorf("attach source: %w", err)
	}
	return nil
}

// CreateControlChannel opens an ordered, reliable data channel. Called before
// CreateOffer so the channel rides the initial negotiation.
func (p *Peer) CreateControlChannel(label string) (domain.DataChannel, error) {
	// nil init: pion defaults to ordered delivery with no loss tolerance.
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return &dataChannel{dc: dc}, nil
}

// CreateOffer creates the local SDP offer and sets it as local description.
func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

// SetAnswer applies the remote SDP answer.
func (p *Peer) SetAnswer(ctx context.Context, sdp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	answer := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// OnIceCandidate registers the local candidate callback. Loopback candidates
// are filtered out.
func (p *Peer) OnIceCandidate(fn func(domain.IceCandidate)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			p.log.Debug().Msg("ICE gathering complete")
			return
		}
		init := c.ToJSON()
		if isLoopback(init.Candidate) {
			return
		}
		out := domain.IceCandidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			out.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			out.SDPMLineIndex = *init.SDPMLineIndex
		}
		fn(out)
	})
}

// OnStateChange maps pion's connection states onto the coarse transport
// signal the negotiator consumes.
func (p *Peer) OnStateChange(fn func(domain.TransportState)) {
	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Debug().Str("state", state.String()).Msg("peer connection state")
		switch state {
		case pion.PeerConnectionStateConnected:
			fn(domain.TransportConnected)
		case pion.PeerConnectionStateFailed:
			fn(domain.TransportFailed)
		case pion.PeerConnectionStateDisconnected, pion.PeerConnectionStateClosed:
			fn(domain.TransportDisconnected)
		default:
			fn(domain.TransportConnecting)
		}
	})
}

// SubscribeInboundVideo attaches sink to every negotiated inbound video
// track. pion does not fire OnTrack for tracks that were part of the local
// offer's sendrecv transceiver, so the explicit walk is required; OnTrack is
// still registered to cover renegotiated additions. A nil sink keeps the
// pumps running so the inbound counters stay current.
func (p *Peer) SubscribeInboundVideo(sink domain.FrameSink) {
	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		p.startPump(track, sink)
	})
	for _, tr := range p.pc.GetTransceivers() {
		recv := tr.Receiver()
		if recv == nil {
			continue
		}
		track := recv.Track()
		if track == nil || track.Kind() != pion.RTPCodecTypeVideo {
			continue
		}
		p.startPump(track, sink)
	}
}

func (p *Peer) startPump(track *pion.TrackRemote, sink domain.FrameSink) {
	p.mu.Lock()
	if _, dup := p.pumping[track]; dup {
		p.mu.Unlock()
		return
	}
	p.pumping[track] = struct{}{}
	p.mu.Unlock()

	p.log.Info().Str("track_id", track.ID()).Msg("reading inbound video track")
	go p.readTrack(track, sink)
}

// readTrack pumps RTP payloads into the sink, one callback per frame (marker
// bit), and keeps the raw counters current for the stats sampler.
func (p *Peer) readTrack(track *pion.TrackRemote, sink domain.FrameSink) {
	var frame []byte
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.log.Debug().Err(err).Msg("track read ended")
			return
		}
		p.hasStream.Store(true)
		p.bytes.Add(uint64(len(pkt.Payload)))
		frame = append(frame, pkt.Payload...)
		if pkt.Marker {
			p.frames.Add(1)
			if sink != nil {
				sink.OnFrame(frame)
			}
			frame = nil
		}
	}
}

// InboundVideoCounters reports the raw counters; ok is false until the first
// inbound packet arrives.
func (p *Peer) InboundVideoCounters() (domain.TransportCounters, bool) {
	if !p.hasStream.Load() {
		return domain.TransportCounters{}, false
	}
	return domain.TransportCounters{
		Frames: p.frames.Load(),
		Bytes:  p.bytes.Load(),
	}, true
}

// Close releases the peer connection and everything it owns.
func (p *Peer) Close() error {
	return p.pc.Close()
}

// isLoopback inspects the connection-address field of a candidate line
// ("candidate:<foundation> <component> <proto> <priority> <address> <port> ...").
// Unparseable addresses, e.g. mDNS hostnames, are not filtered.
func isLoopback(candidate string) bool {
	fields := strings.Fields(candidate)
	if len(fields) < 5 {
		return false
	}
	addr, err := netip.ParseAddr(strings.Trim(fields[4], "[]"))
	if err != nil {
		return false
	}
	return addr.IsLoopback()
}
