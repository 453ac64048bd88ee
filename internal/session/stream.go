package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// streamTransport wraps a TCP connection.
type streamTransport struct {
	conn net.Conn
	buf  []byte
}

func dialStream(p Params, timeout time.Duration) (transport, error) {
	addr := net.JoinHostPort(p.Host, fmt.Sprintf("%d", p.Port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &streamTransport{conn: conn, buf: make([]byte, 4096)}, nil
}

func (t *streamTransport) read() ([]byte, bool, error) {
	n, err := t.conn.Read(t.buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, t.buf[:n])
		return data, false, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, true, nil
	}
	if errors.Is(err, net.ErrClosed) {
		return nil, true, nil
	}
	return nil, false, err
}

func (t *streamTransport) write(data []byte) error {
	_, err := t.conn.Write(data)
	return err
}

func (t *streamTransport) close() error {
	return t.conn.Close()
}
