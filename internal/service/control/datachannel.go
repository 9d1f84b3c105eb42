package control

import (
	"github.com/pion/webrtc/v4"
)

// dataChannelConn adapts a WebRTC data channel to Conn.
type dataChannelConn struct {
	dc *webrtc.DataChannel
}

// BindDataChannel wires a WebRTC data channel into the control channel.
// The data channel must be created ordered and reliable (pion's default).
func BindDataChannel(c *Channel, dc *webrtc.DataChannel) {
	c.Bind(&dataChannelConn{dc: dc})
	dc.OnOpen(c.HandleOpen)
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		c.HandleRaw(m.Data)
	})
	dc.OnClose(func() {
		c.Close()
	})
}

func (d *dataChannelConn) Send(data []byte) error {
	return d.dc.SendText(string(data))
}

func (d *dataChannelConn) Close() error {
	return d.dc.Close()
}
