package domain

// ConnectionState is the negotiator-owned session lifecycle state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a session is in flight or established.
func (s ConnectionState) Active() bool {
	return s == StateConnecting || s == StateConnected
}

// TransportState is the connectivity signal reported by the peer-session layer.
// It is deliberately coarser than pion's state set: the negotiator only needs to
// know when media is flowing, when it stopped cleanly, and when it broke.
type TransportState int

const (
	TransportConnecting TransportState = iota
	TransportConnected
	TransportDisconnected
	TransportFailed
)

func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PipelineLoadState is the server-reported status of a processing pipeline.
type PipelineLoadState string

const (
	PipelineNotLoaded PipelineLoadState = "not_loaded"
	PipelineLoading   PipelineLoadState = "loading"
	PipelineLoaded    PipelineLoadState = "loaded"
	PipelineError     PipelineLoadState = "error"
)

// Terminal reports whether polling can stop.
func (s PipelineLoadState) Terminal() bool {
	return s == PipelineLoaded || s == PipelineError
}
