// Package discovery lets clients find agents on the local network without configuration.
//
// A client broadcasts the probe text DISCOVER_SERVERS to the discovery UDP port. Every agent that
// hears it replies to the sender with SERVER_AT:<port>, where port is the agent's TCP command port.
// The exchange is connectionless and best-effort: no retries or acknowledgements.
package discovery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Probe is the exact payload of a discovery request.
	Probe = "DISCOVER_SERVERS"
	// ReplyPrefix starts every discovery reply.
	ReplyPrefix = "SERVER_AT:"

	DefaultPort = 5001
	// maxDatagram bounds probe and reply reads.
	maxDatagram = 1024
)

// FormatReply builds the reply advertising tcpPort.
func FormatReply(tcpPort int) string {
	return ReplyPrefix + strconv.Itoa(tcpPort)
}

// ParseReply extracts the TCP port from a reply.
func ParseReply(payload string) (int, error) {
	rest, ok := strings.CutPrefix(payload, ReplyPrefix)
	if !ok {
		return 0, errors.New("not a discovery reply")
	}
	port, err := strconv.Atoi(rest)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", rest)
	}
	return port, nil
}
