package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// Responder answers discovery probes with the agent's TCP port.
type Responder struct {
	Log     *zap.SugaredLogger
	TCPPort int

	conn net.PacketConn
}

// Listen binds the discovery socket on addr, e.g. "0.0.0.0:5001".
func (r *Responder) Listen(addr string) error {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return fmt.Errorf("listening UDP: %w", err)
	}
	r.conn = conn
	return nil
}

// Addr is the bound discovery address.
func (r *Responder) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Serve answers probes until ctx is done or the socket is closed.
// Payloads other than the exact probe text are ignored.
func (r *Responder) Serve(ctx context.Context) error {
	if r.conn == nil {
		return errors.New("discovery responder is not listening")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = r.conn.Close()
		case <-done:
		}
	}()

	r.Log.Infow("answering discovery probes", "Addr", r.conn.LocalAddr().String(), "TCPPort", r.TCPPort)

	reply := []byte(FormatReply(r.TCPPort))
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading discovery probe: %w", err)
		}
		if string(buf[:n]) != Probe {
			continue
		}
		r.Log.Debugw("got discovery probe", "From", from.String())
		_, err = r.conn.WriteTo(reply, from)
		if err != nil {
			r.Log.Debugf("error replying to %s: %s", from, err)
		}
	}
}

// Close closes the discovery socket.
func (r *Responder) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
