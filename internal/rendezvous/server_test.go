package rendezvous

import (
	"net"
	"testing"
)

func makeTag(s string) [TagSize]byte {
	var tag [TagSize]byte
	copy(tag[:], s)
	return tag
}

func TestRegistryPairsMatchingTags(t *testing.T) {
	r := NewRegistry()
	tag := makeTag("hello")
	addrA := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 1111}
	addrB := &net.UDPAddr{IP: net.ParseIP("5.6.7.8"), Port: 2222}

	if _, paired := r.Pair(tag, addrA); paired {
		t.Fatalf("first arrival should not pair immediately")
	}
	other, paired := r.Pair(tag, addrB)
	if !paired {
		t.Fatalf("second arrival with same tag should pair")
	}
	if other.String() != addrA.String() {
		t.Fatalf("expected paired address %v, got %v", addrA, other)
	}

	if _, exists := r.pending[tag]; exists {
		t.Fatalf("entry should be removed once pairing succeeds")
	}
}

func TestRegistryKeepsDistinctTagsSeparate(t *testing.T) {
	r := NewRegistry()
	tagA := makeTag("alpha")
	tagB := makeTag("beta")
	addrA := &net.UDPAddr{IP: net.ParseIP("1.1.1.1"), Port: 1}
	addrB := &net.UDPAddr{IP: net.ParseIP("2.2.2.2"), Port: 2}

	r.Pair(tagA, addrA)
	if _, paired := r.Pair(tagB, addrB); paired {
		t.Fatalf("different tags must not pair with each other")
	}
}

func TestPaddedAddrZeroPadded(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 4277}
	buf := paddedAddr(addr)
	s := addr.String()
	for i := 0; i < len(s); i++ {
		if buf[i] != s[i] {
			t.Fatalf("expected prefix %q, byte %d differs", s, i)
		}
	}
	for i := len(s); i < TagSize; i++ {
		if buf[i] != 0 {
			t.Fatalf("expected zero padding at byte %d", i)
		}
	}
}
