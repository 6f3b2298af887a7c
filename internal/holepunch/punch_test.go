package holepunch

import (
	"net"
	"sync"
	"testing"
	"time"
)

func TestSleepToBoundaryReturnsBeforeNextBoundary(t *testing.T) {
	start := time.Now()
	sleepToBoundary(50 * time.Millisecond)
	elapsed := time.Since(start)
	if elapsed >= 60*time.Millisecond {
		t.Fatalf("sleepToBoundary took too long: %v", elapsed)
	}
}

// fakeHelper relays exactly one pairing, mirroring internal/rendezvous's
// wire behavior without importing the package (keeps this test hermetic).
func fakeHelper(t *testing.T, tag string) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		buf := make([]byte, 200)
		var first *net.UDPAddr
		for i := 0; i < 2; i++ {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil || n != 200 {
				return
			}
			if first == nil {
				first = addr
				continue
			}
			var a, b [200]byte
			copy(a[:], first.String())
			copy(b[:], addr.String())
			conn.WriteToUDP(a[:], addr)
			conn.WriteToUDP(b[:], first)
		}
	}()
	return conn
}

func TestRendezvousExchangeResolvesPeerAddress(t *testing.T) {
	helper := fakeHelper(t, "hello")
	defer helper.Close()

	connA, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen A: %v", err)
	}
	defer connA.Close()
	connB, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen B: %v", err)
	}
	defer connB.Close()

	var wg sync.WaitGroup
	var peerOfA, peerOfB string
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		peerOfA, errA = rendezvousExchange(connA, helper.LocalAddr().String(), "hello")
	}()
	go func() {
		defer wg.Done()
		peerOfB, errB = rendezvousExchange(connB, helper.LocalAddr().String(), "hello")
	}()
	wg.Wait()

	if errA != nil || errB != nil {
		t.Fatalf("rendezvousExchange errors: %v, %v", errA, errB)
	}
	if peerOfA != connB.LocalAddr().String() {
		t.Fatalf("A resolved %q, want B's address %q", peerOfA, connB.LocalAddr())
	}
	if peerOfB != connA.LocalAddr().String() {
		t.Fatalf("B resolved %q, want A's address %q", peerOfB, connA.LocalAddr())
	}
}

func TestDefaultHandshakeBothSidesComplete(t *testing.T) {
	connA, err := net.DialUDP("udp", &net.UDPAddr{}, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer connA.Close()
	connB, err := net.DialUDP("udp", &net.UDPAddr{}, connA.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer connB.Close()
	if err := connA.Close(); err != nil {
		t.Fatalf("reclose A: %v", err)
	}
	connA, err = net.DialUDP("udp", connA.LocalAddr().(*net.UDPAddr), connB.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("redial A to B: %v", err)
	}
	defer connA.Close()

	_ = connA.SetDeadline(time.Now().Add(5 * time.Second))
	_ = connB.SetDeadline(time.Now().Add(5 * time.Second))

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); errA = defaultHandshake(connA) }()
	go func() { defer wg.Done(); errB = defaultHandshake(connB) }()
	wg.Wait()

	if errA != nil {
		t.Fatalf("A handshake failed: %v", errA)
	}
	if errB != nil {
		t.Fatalf("B handshake failed: %v", errB)
	}
}
