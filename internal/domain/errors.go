package domain

import "fmt"

// FailureClass categorizes session-layer failures for callers that need to
// distinguish more than the reason string.
type FailureClass int

const (
	// FailureUnreachable: a signaling call failed at the transport level.
	FailureUnreachable FailureClass = iota
	// FailureRemoteConfig: the remote pipeline load ended in Error.
	FailureRemoteConfig
	// FailureNegotiation: offer/answer or description handling failed.
	FailureNegotiation
	// FailureTransport: the media layer reported a post-connection failure.
	FailureTransport
	// FailureServerStop: the server ended the stream via the control channel.
	FailureServerStop
)

func (c FailureClass) String() string {
	switch c {
	case FailureUnreachable:
		return "unreachable"
	case FailureRemoteConfig:
		return "remote_config"
	case FailureNegotiation:
		return "negotiation"
	case FailureTransport:
		return "transport"
	case FailureServerStop:
		return "server_stop"
	default:
		return "unknown"
	}
}

// SessionError wraps a failure with its class and the operation that hit it.
type SessionError struct {
	Class FailureClass
	Op    string
	Err   error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Class, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Unreachable wraps a failed signaling call.
func Unreachable(op string, err error) *SessionError {
	return &SessionError{Class: FailureUnreachable, Op: op, Err: err}
}

// RemoteConfigError wraps a pipeline load that ended in Error.
func RemoteConfigError(op string, err error) *SessionError {
	return &SessionError{Class: FailureRemoteConfig, Op: op, Err: err}
}

// NegotiationError wraps a mid-sequence offer/answer failure.
func NegotiationError(op string, err error) *SessionError {
	return &SessionError{Class: FailureNegotiation, Op: op, Err: err}
}

// TransportError wraps an asynchronous media-layer failure.
func TransportError(op string, err error) *SessionError {
	return &SessionError{Class: FailureTransport, Op: op, Err: err}
}
