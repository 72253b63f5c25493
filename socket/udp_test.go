package socket

import (
	"net"
	"testing"
)

func TestEndpointRoundTripIPv4(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 42), Port: 5555}
	enc, err := encodeEndpoint(addr)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != '4' {
		t.Fatalf("expected ipv4 tag, got %q", enc[0])
	}
	dec, err := decodeEndpoint(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.IP.Equal(addr.IP) || dec.Port != addr.Port {
		t.Fatalf("roundtrip mismatch: got %v", dec)
	}
}

func TestEndpointPortIsHostOrder(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 0x1234}
	enc, err := encodeEndpoint(addr)
	if err != nil {
		t.Fatal(err)
	}
	// Port occupies the last two bytes of the ipv4 encoding; host order on
	// this runtime's little-endian deployment targets means the low byte
	// comes first on the wire, not network (big-endian) order.
	if enc[5] != 0x34 || enc[6] != 0x12 {
		t.Fatalf("expected little-endian port bytes 34 12, got %02x %02x", enc[5], enc[6])
	}
}

func TestEndpointRoundTripIPv6(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	addr := &net.UDPAddr{IP: ip, Port: 9999}
	enc, err := encodeEndpoint(addr)
	if err != nil {
		t.Fatal(err)
	}
	if enc[0] != '6' {
		t.Fatalf("expected ipv6 tag, got %q", enc[0])
	}
	dec, err := decodeEndpoint(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.IP.Equal(addr.IP) || dec.Port != addr.Port {
		t.Fatalf("roundtrip mismatch: got %v", dec)
	}
}
