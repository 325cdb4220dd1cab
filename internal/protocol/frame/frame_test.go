package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	dst, _ := ParseMAC("02:AA:BB:CC:DD:EE")
	src, _ := ParseMAC("9C:EB:E8:AE:7E:F5")
	in := Frame{Dst: dst, Src: src, EtherType: protocol.EtherTypeData, Payload: []byte("fragment")}

	b, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) != HeaderLen+len(in.Payload) {
		t.Fatalf("unexpected frame length: %d", len(b))
	}
	if b[12] != 0x88 || b[13] != 0xB5 {
		t.Fatalf("ethertype not big-endian on the wire: % x", b[12:14])
	}

	out, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out.Dst, dst) || !bytes.Equal(out.Src, src) {
		t.Fatalf("address mismatch: dst=%s src=%s", out.Dst, out.Src)
	}
	if out.EtherType != protocol.EtherTypeData {
		t.Fatalf("ethertype mismatch: %#04x", out.EtherType)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestDecodeShortFrame(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestEncodeRejectsBadAddressAndOversizePayload(t *testing.T) {
	src, _ := ParseMAC("9C:EB:E8:AE:7E:F5")
	if _, err := Encode(Frame{Dst: []byte{1, 2}, Src: src}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	_, err := Encode(Frame{Dst: src, Src: src, Payload: make([]byte, MaxPayloadLen+1)})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestParseMACRejectsLongForms(t *testing.T) {
	if _, err := ParseMAC("00:00:00:00:fe:80:00:00"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := ParseMAC("not-a-mac"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}
