package safestream

import (
	"time"

	"github.com/fatih/color"
)

// Timing constants preserved from the reference implementation.
const (
	lostDelay    = 5000 * time.Millisecond
	brokenDelay  = 10000 * time.Millisecond
	resendDelay  = 100 * time.Millisecond
	retxSpacing  = 4 * time.Millisecond
	pollInterval = 1 * time.Millisecond
	idleDeadline = 1 * time.Second

	// mustWaitGate is the soft cap on in-flight unacknowledged packets.
	// Once reached, the drain loop blocks for an ACK instead of polling.
	mustWaitGate = 256
)

// Conn is the minimal socket surface Stream needs: a connected, datagram
// oriented transport with the usual deadline controls. *net.UDPConn
// satisfies it directly once dialed to a fixed peer.
type Conn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
}

// Stream turns a connected, lossy datagram Conn into a reliable, ordered,
// bidirectional byte channel. A Stream is not safe for concurrent use; the
// protocol is single-threaded and synchronous by design.
type Stream struct {
	conn Conn

	outSeq uint64
	inSeq  uint64

	// retx holds the fully-framed bytes of every sent packet that has not
	// yet been acknowledged, keyed by its 16-bit wire id.
	retx map[uint16][]byte

	// HideDrops suppresses the one-line-per-episode packet drop log.
	HideDrops bool
}

// New wraps conn in a Stream. Both peers must start with matching sequence
// counters at zero.
func New(conn Conn) *Stream {
	return &Stream{
		conn: conn,
		retx: make(map[uint16][]byte),
	}
}

// Write sends buf as one WRITE packet, pacing the send by delay.
func (s *Stream) Write(buf []byte, delay time.Duration) error {
	return s.WriteFlush(buf, false, delay)
}

// WriteFlush sends buf as one WRITE packet. When flush is set, the send
// blocks until the peer acknowledges it before returning.
func (s *Stream) WriteFlush(buf []byte, flush bool, delay time.Duration) error {
	return s.internalWrite(buf, PacketWrite, flush, false, delay)
}

// End signals end-of-stream to the peer. The next Read on the peer's side
// returns a zero-length result.
func (s *Stream) End() error {
	return s.internalWrite(nil, PacketEnd, true, true, 3000*time.Microsecond)
}

// recvImmediate performs a short poll: a datagram that is already queued,
// or that arrives within pollInterval, is returned; otherwise a timeout
// error comes back. The deadline lies pollInterval ahead because a deadline
// at or before now makes Read fail without looking at the socket.
// This replaces toggling a socket's blocking mode around a single recv.
func (s *Stream) recvImmediate(buf []byte) (int, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(pollInterval))
	return s.conn.Read(buf)
}

// recvTimeout performs a receive bounded by d.
func (s *Stream) recvTimeout(buf []byte, d time.Duration) (int, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(d))
	return s.conn.Read(buf)
}

func (s *Stream) logDrop(format string, args ...interface{}) {
	if s.HideDrops {
		return
	}
	color.Yellow(format, args...)
}

// internalWrite frames and sends one packet, then drains incoming control
// traffic (ACK/RESEND) until the send is either acknowledged or the caller
// is free to move on. See SPEC_FULL.md §4.1 for the full state machine.
func (s *Stream) internalWrite(buf []byte, kind PacketKind, flush, exitOnLost bool, delay time.Duration) error {
	if len(buf) > MaxPayload {
		panic("safestream: payload too large to send")
	}

	idn := uint16(s.outSeq)
	s.outSeq++

	framed := encodePacket(idn, kind, buf)
	for {
		n, err := s.conn.Write(framed)
		if err != nil {
			continue
		}
		if n != len(framed) {
			continue
		}
		break
	}
	time.Sleep(delay)
	s.retx[idn] = framed

	mustWait := idn == idWrap || flush
	if len(s.retx) >= mustWaitGate {
		mustWait = true
	}

	start := time.Now()
	if idn == idWrap {
		color.Yellow("Packet ID needs to wrap. Waiting for partner to catch up...")
	}

	recvBuf := make([]byte, headerSize)
	isCatchingUp := false

	for {
		var n int
		var err error
		if mustWait {
			n, err = s.recvTimeout(recvBuf, idleDeadline)
		} else {
			n, err = s.recvImmediate(recvBuf)
		}

		if err != nil {
			// Any recv failure, timeout or not, is transient and retried
			// through the same idle-timer path (SPEC_FULL.md §7); a
			// non-timeout error (e.g. a refused connection) must not
			// bypass the idle/broken-connection timers into a tight spin.
			if exitOnLost && time.Since(start) > lostDelay {
				break
			}
			if time.Since(start) > brokenDelay {
				color.Yellow("10s passed since last packet ==> Connection broken. Trying to resend packet...")
				if last, ok := s.retx[idn]; ok {
					s.resendOnce(last)
					start = time.Now()
				} else {
					break
				}
				continue
			}
			if !mustWait {
				break
			}
			continue
		}

		if n != headerSize {
			continue
		}
		id, pkind, ok := decodeHeader(recvBuf)
		if !ok {
			continue
		}

		switch pkind {
		case PacketAck:
			delete(s.retx, id)
			if id == idn {
				if idn == idWrap {
					color.Yellow("Packet ID wrap successful.")
				}
				mustWait = false
				// The latest packet being ACK'd implies every earlier
				// one must have arrived too.
				s.retx = make(map[uint16][]byte)
			}
		case PacketResend:
			n := id
			time.Sleep(resendDelay)
			s.drainPending(recvBuf)
			if !isCatchingUp {
				s.logDrop("A packet dropped: %d", n)
				mustWait = true
				isCatchingUp = true
				for n <= idn && !(idn == idWrap && n == 0) {
					if last, ok := s.retx[n]; ok {
						s.resendOnce(last)
					}
					// retx is not cleared here; only an ACK retires an entry.
					n++
				}
			}
		}
	}

	return nil
}

// resendOnce retransmits a previously framed packet until the write
// succeeds, then paces by retxSpacing.
func (s *Stream) resendOnce(framed []byte) {
	for {
		n, err := s.conn.Write(framed)
		if err != nil {
			continue
		}
		if n != len(framed) {
			continue
		}
		break
	}
	time.Sleep(retxSpacing)
}

// drainPending consumes any datagrams already queued at the socket; they
// are stale ACK/RESEND chatter left over from the cascade that triggered
// this drain.
func (s *Stream) drainPending(buf []byte) {
	for {
		_, err := s.recvImmediate(buf)
		if err != nil {
			return
		}
	}
}

// Read blocks until the next in-order WRITE payload arrives, or until an
// END packet is observed, in which case it returns a zero-length slice.
func (s *Stream) Read(maxPayload int) ([]byte, error) {
	if maxPayload > MaxPayload {
		panic("safestream: requested receive buffer too large")
	}

	recvBuf := make([]byte, headerSize+maxPayload)
	isCatchingUp := false

	for {
		_ = s.conn.SetReadDeadline(time.Time{})
		n, err := s.conn.Read(recvBuf)
		if err != nil {
			// All recv failures are transient here too (SPEC_FULL.md §7);
			// neither a timeout nor a harder socket error (e.g. a refused
			// connection before the peer's socket is ready) should abort
			// the caller's Read, only the peer going away for good does,
			// and that case is handled by internalWrite's own timers.
			continue
		}
		if n < headerSize {
			continue
		}
		id, kind, ok := decodeHeader(recvBuf[:n])
		if !ok {
			continue
		}
		expected := uint16(s.inSeq)

		if seqIsDuplicateOrOld(id, expected) {
			ack := encodePacket(id, PacketAck, nil)
			// A failed ack write is transient: the sender's own retransmit
			// timer will prompt another one, so it is not surfaced here.
			_, _ = s.conn.Write(ack)
		}

		if seqIsNext(id, expected) {
			if id == idWrap {
				color.Yellow("Packet ID wrap successful.")
			}
			s.inSeq++
			if kind == PacketEnd {
				return nil, nil
			}
			payload := make([]byte, n-headerSize)
			copy(payload, recvBuf[headerSize:n])
			return payload, nil
		}

		if seqIsForwardGap(id, expected) {
			if !isCatchingUp {
				s.logDrop("A packet dropped: %d (got) is newer than %d (expected)", id, expected)
			}
			isCatchingUp = true
			resend := encodePacket(expected, PacketResend, nil)
			// Same disposition as the ack write above: a failed send here
			// just means another gap will re-trigger the request.
			_, _ = s.conn.Write(resend)
		}

		if kind == PacketEnd {
			return nil, nil
		}
	}
}
