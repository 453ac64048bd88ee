package modules

import "github.com/Diesmo/scripthost/internal/session"

// Net opens raw TCP connections. Privileged.
//
// Connect reports its outcome through onResult; afterwards inbound traffic
// arrives as `net.data`, `net.close`, and `net.error` events carrying the
// connection id, visible only to the owning script.
type Net struct {
	conns conns
}

// ModuleName implements capability.Module.
func (*Net) ModuleName() string { return "net" }

// Connect dials host:port. Invalid params fail synchronously; the dial
// itself happens off the script's queue and lands in onResult exactly once.
func (n *Net) Connect(host string, port int, onResult session.OpenResult) (string, error) {
	return n.conns.open(session.Params{Host: host, Port: port}, onResult)
}

// Write queues data for sending in call order. Never blocks; transport
// failures surface as a `net.error` event.
func (n *Net) Write(id string, data []byte) error {
	return n.conns.svc.Sessions.Write(id, data)
}

// Close tears the connection down. Idempotent; no events follow.
func (n *Net) Close(id string) {
	n.conns.svc.Sessions.Close(id)
}
