package socket

import (
	"bytes"
	"testing"
)

func TestWSFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello websocket")
	if err := writeWSFrame(&buf, opBinary, payload); err != nil {
		t.Fatal(err)
	}
	f, err := readWSFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !f.fin || f.opcode != opBinary || f.masked {
		t.Fatalf("unexpected frame header: %+v", f)
	}
	if !bytes.Equal(f.payload, payload) {
		t.Fatalf("payload mismatch: got %q", f.payload)
	}
}

func TestWSFrameLargePayload(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0xAB}, 70000)
	if err := writeWSFrame(&buf, opText, payload); err != nil {
		t.Fatal(err)
	}
	f, err := readWSFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.payload) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(f.payload))
	}
}

func TestWSMaskedClientFrame(t *testing.T) {
	key := [4]byte{1, 2, 3, 4}
	payload := []byte("masked body")
	masked := make([]byte, len(payload))
	copy(masked, payload)
	unmaskWS(masked, key) // masking is its own inverse

	var buf bytes.Buffer
	buf.WriteByte(finBit | opText)
	buf.WriteByte(maskBit | byte(len(masked)))
	buf.Write(key[:])
	buf.Write(masked)

	f, err := readWSFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !f.masked || !bytes.Equal(f.payload, payload) {
		t.Fatalf("expected unmasked %q, got masked=%v %q", payload, f.masked, f.payload)
	}
}
