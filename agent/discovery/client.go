package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultWindow is how long Discover collects replies.
const DefaultWindow = 2 * time.Second

// DefaultTarget is the IPv4 limited broadcast address on the default discovery port.
var DefaultTarget = net.JoinHostPort("255.255.255.255", strconv.Itoa(DefaultPort))

// Server is an agent that answered a probe.
type Server struct {
	Host string
	Port int
}

func (s Server) String() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Discover sends one probe to target and collects replies until window elapses or ctx is done.
// Servers are returned in arrival order without duplicates; malformed replies are skipped.
func Discover(ctx context.Context, target string, window time.Duration) ([]Server, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	targetAddr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", target, err)
	}

	// Go enables SO_BROADCAST on UDP sockets, so the limited broadcast address works as a target.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("listening UDP: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(window)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-stop:
		}
	}()

	_, err = conn.WriteToUDP([]byte(Probe), targetAddr)
	if err != nil {
		return nil, fmt.Errorf("sending probe: %w", err)
	}

	var servers []Server
	seen := map[Server]bool{}
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if ctx.Err() != nil && len(servers) == 0 {
					return nil, ctx.Err()
				}
				return servers, nil
			}
			return servers, fmt.Errorf("reading replies: %w", err)
		}
		port, err := ParseReply(string(buf[:n]))
		if err != nil {
			continue
		}
		s := Server{Host: from.IP.String(), Port: port}
		if seen[s] {
			continue
		}
		seen[s] = true
		servers = append(servers, s)
	}
}
