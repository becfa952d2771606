package transport

import (
	"net"
	"strconv"
)

// DefaultPort is the default CoAP port (RFC 7252 Section 6.1).
const DefaultPort = 5683

// ResolveUDPAddr parses a "host:port" or bare host string into a UDP
// address. A missing port defaults to DefaultPort.
func ResolveUDPAddr(addr string) (*net.UDPAddr, error) {
	if addr == "" {
		return nil, ErrInvalidAddress
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	return net.ResolveUDPAddr("udp", addr)
}
