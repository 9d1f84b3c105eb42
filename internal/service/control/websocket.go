package control

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 10 * time.Second

// websocketConn adapts a gorilla websocket connection to Conn.
type websocketConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// DialWebSocket connects the control channel over a websocket. This is the
// fallback transport for environments where the peer-to-peer transport is
// unavailable; the realtime endpoint speaks the same protocol on both.
//
// On success the channel is bound and marked open, and a read loop feeds
// inbound messages until the connection drops. When the read loop ends,
// onClose is invoked once with nil for a clean remote close and the read
// error otherwise, so the transport can surface the disconnect.
func DialWebSocket(c *Channel, rawURL string, header http.Header, onClose func(err error)) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, resp, err := dialer.Dial(rawURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	wc := &websocketConn{conn: conn}
	c.Bind(wc)

	go func() {
		defer c.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					err = nil
				} else {
					log.Debug().Err(err).Msg("Control websocket read ended")
				}
				if onClose != nil {
					onClose(err)
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			c.HandleRaw(data)
		}
	}()

	c.HandleOpen()
	return nil
}

func (w *websocketConn) Send(data []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *websocketConn) Close() error {
	w.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
