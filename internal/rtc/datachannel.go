package rtc

import (
	pion "github.com/pion/webrtc/v4"

	"github.com/jreinjr/dreamwalker/internal/domain"
)

// dataChannel adapts a pion DataChannel to domain.DataChannel.
type dataChannel struct {
	dc *pion.DataChannel
}

var _ domain.DataChannel = (*dataChannel)(nil)

func (d *dataChannel) Label() string {
	return d.dc.Label()
}

func (d *dataChannel) IsOpen() bool {
	return d.dc.ReadyState() == pion.DataChannelStateOpen
}

func (d *dataChannel) SendText(msg string) error {
	return d.dc.SendText(msg)
}

func (d *dataChannel) OnOpen(fn func()) {
	d.dc.OnOpen(fn)
}

func (d *dataChannel) OnMessage(fn func(data []byte)) {
	d.dc.OnMessage(func(msg pion.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (d *dataChannel) Close() error {
	return d.dc.Close()
}
