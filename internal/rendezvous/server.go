// Package rendezvous implements the helper server that pairs two peers
// presenting the same tag and exchanges their public socket addresses.
package rendezvous

import (
	"net"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// TagSize is the fixed length of a rendezvous tag datagram. Datagrams of
// any other length are silently discarded.
const TagSize = 200

// Registry tracks the first peer seen for each tag, keyed by the raw tag
// bytes, until a second peer with the same tag arrives.
type Registry struct {
	pending map[[TagSize]byte]*net.UDPAddr
}

// NewRegistry creates an empty pairing registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[[TagSize]byte]*net.UDPAddr)}
}

// Pair records addr as waiting under tag, or returns the peer address
// already waiting and clears the entry if this completes a pair.
func (r *Registry) Pair(tag [TagSize]byte, addr *net.UDPAddr) (other *net.UDPAddr, paired bool) {
	if existing, ok := r.pending[tag]; ok {
		delete(r.pending, tag)
		return existing, true
	}
	r.pending[tag] = addr
	return nil, false
}

// Serve binds a UDP socket on the given port and runs the rendezvous loop
// until reading from the socket fails. There is no other way to stop it;
// the protocol itself has no shutdown signal.
func Serve(port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return errors.Wrap(err, "bind helper socket")
	}
	defer conn.Close()

	registry := NewRegistry()
	// One spare byte, so an oversized datagram reads as n > TagSize instead
	// of being truncated to exactly TagSize.
	buf := make([]byte, TagSize+1)

	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return errors.Wrap(err, "read from helper socket")
		}
		if n != TagSize {
			continue
		}

		var tag [TagSize]byte
		copy(tag[:], buf[:TagSize])

		other, paired := registry.Pair(tag, addr)
		if !paired {
			continue
		}

		addrBuf := paddedAddr(addr)
		otherBuf := paddedAddr(other)

		sentToOther := sendTo(conn, addrBuf, other)
		sentToAddr := sendTo(conn, otherBuf, addr)
		if sentToOther && sentToAddr {
			color.Green("%s UTC  Connected %s & %s", time.Now().UTC().Format(time.RFC3339), addr, other)
		}
	}
}

func sendTo(conn *net.UDPConn, buf [TagSize]byte, addr *net.UDPAddr) bool {
	_, err := conn.WriteToUDP(buf[:], addr)
	return err == nil
}

// paddedAddr renders addr as ASCII "host:port", right-padded with zero
// bytes to TagSize, matching the wire format the peer expects to parse.
func paddedAddr(addr *net.UDPAddr) [TagSize]byte {
	var out [TagSize]byte
	s := addr.String()
	copy(out[:], s)
	return out
}
