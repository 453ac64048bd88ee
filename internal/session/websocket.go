package session

import (
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport wraps a websocket peer. Message-oriented: each read returns
// one complete text or binary message.
type wsTransport struct {
	conn *websocket.Conn
}

func dialWebsocket(p Params, timeout time.Duration) (transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(p.URL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(16 << 20)
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) read() ([]byte, bool, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived,
		) {
			return nil, true, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, true, nil
		}
		return nil, false, err
	}
	return data, false, nil
}

func (t *wsTransport) write(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	return t.conn.Close()
}
