// Package holepunch establishes a bidirectional UDP path between two peers
// via the rendezvous helper and synchronizes both ends so they enter the
// safestream protocol in lockstep.
package holepunch

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/tudbut/qft/internal/rendezvous"
)

// handshakeIterations/handshakePace describe the default handshake's
// phase-2 burst: 40 single-byte sends, paced roughly one per 50ms.
const (
	handshakeIterations = 40
	handshakePace       = 50 * time.Millisecond
	alignBoundary       = 500 * time.Millisecond
	socketTimeout       = 1 * time.Second
)

// Punch binds an ephemeral UDP socket, pairs with a peer presenting the
// same tag at helperAddr, and runs the hole-punching handshake. On success
// it returns a socket connected directly to the peer with 1s read/write
// timeouts, ready to be wrapped in a safestream.Stream.
//
// tag must be 1-200 bytes; it is zero-padded to rendezvous.TagSize on the
// wire. timed selects the alternate wall-clock handshake gated by
// QFT_USE_TIMED_HOLEPUNCH; both peers must agree on it.
func Punch(helperAddr, tag string, timed bool) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, errors.Wrap(err, "bind holepunch socket")
	}

	peerAddr, err := rendezvousExchange(conn, helperAddr, tag)
	if err != nil {
		conn.Close()
		return nil, err
	}

	udpPeer, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "resolve peer address %q", peerAddr)
	}
	localPort := conn.LocalAddr().(*net.UDPAddr).Port
	if err := conn.Close(); err != nil {
		return nil, errors.Wrap(err, "close rendezvous socket")
	}

	// Re-bind the same local port, so the peer's packets reach the mapping
	// the helper observed and reported to it.
	peerConn, err := net.DialUDP("udp", &net.UDPAddr{Port: localPort}, udpPeer)
	if err != nil {
		return nil, errors.Wrap(err, "connect to peer")
	}
	if err := peerConn.SetReadDeadline(time.Now().Add(socketTimeout)); err != nil {
		peerConn.Close()
		return nil, errors.Wrap(err, "set read timeout")
	}
	if err := peerConn.SetWriteDeadline(time.Now().Add(socketTimeout)); err != nil {
		peerConn.Close()
		return nil, errors.Wrap(err, "set write timeout")
	}

	if timed {
		if err := timedHandshake(peerConn); err != nil {
			peerConn.Close()
			return nil, err
		}
	} else {
		if err := defaultHandshake(peerConn); err != nil {
			peerConn.Close()
			return nil, err
		}
	}

	return peerConn, nil
}

// rendezvousExchange sends the zero-padded tag to the helper and returns
// the peer's public address as parsed from the reply, with trailing zero
// padding stripped.
func rendezvousExchange(conn *net.UDPConn, helperAddr, tag string) (string, error) {
	helperUDPAddr, err := net.ResolveUDPAddr("udp", helperAddr)
	if err != nil {
		return "", errors.Wrapf(err, "resolve helper address %q", helperAddr)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", errors.Wrap(err, "clear read deadline")
	}

	var tagBuf [rendezvous.TagSize]byte
	if len(tag) > rendezvous.TagSize {
		return "", errors.Errorf("tag longer than %d bytes", rendezvous.TagSize)
	}
	copy(tagBuf[:], tag)

	if _, err := conn.WriteToUDP(tagBuf[:], helperUDPAddr); err != nil {
		return "", errors.Wrap(err, "send tag to helper")
	}

	reply := make([]byte, rendezvous.TagSize)
	n, _, err := conn.ReadFromUDP(reply)
	if err != nil {
		return "", errors.Wrap(err, "receive peer address from helper")
	}
	reply = reply[:n]
	end := 0
	for end < len(reply) && reply[end] != 0 {
		end++
	}
	if end == 0 {
		return "", errors.New("helper returned empty peer address")
	}
	return string(reply[:end]), nil
}

// defaultHandshake is the three-phase handshake described in SPEC_FULL.md
// §4.3: align, burst single-byte probes, drain them, send a two-byte
// signal twice, then drain the tail so the first safestream datagram is
// the first thing each side observes.
func defaultHandshake(conn *net.UDPConn) error {
	sleepToBoundary(alignBoundary)

	for i := 0; i < handshakeIterations; i++ {
		start := time.Now()
		_, _ = conn.Write([]byte{0})
		if wait := handshakePace - time.Since(start); wait > 0 {
			time.Sleep(wait)
		}
	}

	probe := make([]byte, 2)
	for {
		n, err := conn.Read(probe)
		if err != nil || n != 1 {
			break
		}
	}

	if _, err := conn.Write([]byte{0, 0}); err != nil {
		return errors.Wrap(err, "send handshake signal")
	}
	if _, err := conn.Write([]byte{0, 0}); err != nil {
		return errors.Wrap(err, "send handshake signal")
	}

	for {
		n, err := conn.Read(probe)
		if err != nil {
			return errors.Wrap(err, "handshake stalled waiting for peer signal")
		}
		if n == 2 {
			break
		}
	}
	for {
		n, err := conn.Read(probe)
		if err != nil || n != 2 {
			break
		}
	}

	return nil
}

// timedHandshake is the alternate, explicitly wall-clock synchronized
// handshake gated by QFT_USE_TIMED_HOLEPUNCH, kept only for backward
// interoperability with peers that still use it.
func timedHandshake(conn *net.UDPConn) error {
	two := make([]byte, 2)
	for {
		sleepToBoundary(alignBoundary)
		_, _ = conn.Write([]byte{0})

		n, err := conn.Read(two)
		if err == nil && n == 1 {
			if _, err := conn.Write([]byte{0, 0}); err != nil {
				return errors.Wrap(err, "send handshake ack")
			}
			n, err := conn.Read(two)
			if err == nil && n == 2 {
				return nil
			}
		}
	}
}

// sleepToBoundary sleeps until the next wall-clock boundary of period d,
// coarsely aligning both peers without any shared clock beyond realtime.
func sleepToBoundary(d time.Duration) {
	now := time.Now()
	rem := d - time.Duration(now.UnixNano())%d
	time.Sleep(rem)
}
