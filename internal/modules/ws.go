package modules

import "github.com/Diesmo/scripthost/internal/session"

// WS opens websocket-peer connections. Privileged.
//
// The transport framing is the web layer's concern; to scripts a websocket
// peer is messages in (`ws.data` events) and messages out (Write).
type WS struct {
	conns conns
}

// ModuleName implements capability.Module.
func (*WS) ModuleName() string { return "ws" }

// Connect dials a ws:// or wss:// URL. One terminal onResult callback.
func (w *WS) Connect(url string, onResult session.OpenResult) (string, error) {
	return w.conns.open(session.Params{URL: url}, onResult)
}

// Write queues one message for sending in call order.
func (w *WS) Write(id string, data []byte) error {
	return w.conns.svc.Sessions.Write(id, data)
}

// Close tears the peer connection down. Idempotent; no events follow.
func (w *WS) Close(id string) {
	w.conns.svc.Sessions.Close(id)
}
