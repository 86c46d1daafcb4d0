// Package control is the protocol layer over the session's reliable ordered
// data channel: outbound parameter updates, inbound server notifications.
package control

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jreinjr/dreamwalker/internal/domain"
)

// stopToken is the server's unilateral end-of-stream notification.
const stopToken = "stream_stopped"

type notification struct {
	Type string `json:"type"`
}

// Channel wraps a DataChannel with the control wire format. Sends are
// fire-and-forget: a closed channel turns Send into a logged no-op.
type Channel struct {
	dc  domain.DataChannel
	log zerolog.Logger

	mu     sync.Mutex
	onStop func()
}

// New wraps dc and starts dispatching its inbound messages.
func New(dc domain.DataChannel, log zerolog.Logger) *Channel {
	c := &Channel{
		dc:  dc,
		log: log.With().Str("component", "control").Str("label", dc.Label()).Logger(),
	}
	dc.OnMessage(c.dispatch)
	return c
}

// OnServerStop registers the callback for a server-initiated stream stop.
func (c *Channel) OnServerStop(fn func()) {
	c.mu.Lock()
	c.onStop = fn
	c.mu.Unlock()
}

// Send serializes a partial parameter update onto the channel. Unset fields
// are omitted from the wire so the server leaves them untouched.
func (c *Channel) Send(update domain.RuntimeParameters) {
	if !c.dc.IsOpen() {
		c.log.Warn().Msg("control channel not open, dropping update")
		return
	}
	data, err := json.Marshal(update)
	if err != nil {
		c.log.Warn().Err(err).Msg("marshal update")
		return
	}
	if err := c.dc.SendText(string(data)); err != nil {
		c.log.Warn().Err(err).Msg("send update")
	}
}

// SendResetCache sends an update whose only populated field is the one-shot
// reset flag.
func (c *Channel) SendResetCache() {
	c.Send(domain.RuntimeParameters{ResetCache: true})
}

// Close closes the underlying data channel.
func (c *Channel) Close() error {
	return c.dc.Close()
}

func (c *Channel) dispatch(data []byte) {
	text := strings.TrimSpace(string(data))

	var note notification
	if err := json.Unmarshal(data, &note); err != nil {
		// Some server builds send the stop token as a bare string frame.
		if text != stopToken {
			c.log.Debug().Str("msg", text).Msg("unrecognized control message")
			return
		}
		note.Type = stopToken
	}

	if note.Type != stopToken {
		c.log.Debug().Str("type", note.Type).Msg("control notification")
		return
	}

	c.log.Info().Msg("server stopped the stream")
	c.mu.Lock()
	fn := c.onStop
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
