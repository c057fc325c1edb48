package session

import (
	"bytes"
	"testing"
)

func TestKeyMaterialFrameRoundTrip(t *testing.T) {
	public := []byte{0xde, 0xad, 0xbe, 0xef}
	frame := EncodeKeyMaterial(public)

	got, ok := DecodeKeyMaterial(frame)
	if !ok {
		t.Fatalf("expected complete frame to decode")
	}
	if !bytes.Equal(got, public) {
		t.Fatalf("decoded public = %x, want %x", got, public)
	}
}

func TestDecodeKeyMaterialWaitsForCompleteFrame(t *testing.T) {
	frame := EncodeKeyMaterial([]byte{0x01, 0x02, 0x03})

	for i := 0; i < len(frame); i++ {
		if _, ok := DecodeKeyMaterial(frame[:i]); ok {
			t.Fatalf("prefix of %d bytes decoded as a complete frame", i)
		}
	}
}

func TestDecodeKeyMaterialEmptyValue(t *testing.T) {
	got, ok := DecodeKeyMaterial(EncodeKeyMaterial(nil))
	if !ok {
		t.Fatalf("expected empty-value frame to decode")
	}
	if len(got) != 0 {
		t.Fatalf("decoded %x, want empty", got)
	}
}

func TestPayloadFrameRoundTrip(t *testing.T) {
	name := []byte("report.txt")
	body := []byte{0x01, 0x02, 0x03}
	frame := EncodePayload(name, body)

	gotName, gotBody, ok := DecodePayload(frame)
	if !ok {
		t.Fatalf("expected complete frame to decode")
	}
	if !bytes.Equal(gotName, name) {
		t.Fatalf("decoded name = %q, want %q", gotName, name)
	}
	if !bytes.Equal(gotBody, body) {
		t.Fatalf("decoded body = %x, want %x", gotBody, body)
	}
}

func TestDecodePayloadWaitsForCompleteFrame(t *testing.T) {
	frame := EncodePayload([]byte("notes.bin"), []byte{0xaa, 0xbb})

	for i := 0; i < len(frame); i++ {
		if _, _, ok := DecodePayload(frame[:i]); ok {
			t.Fatalf("prefix of %d bytes decoded as a complete frame", i)
		}
	}
}

func TestDecodePayloadEmptySegments(t *testing.T) {
	name, body, ok := DecodePayload(EncodePayload(nil, nil))
	if !ok {
		t.Fatalf("expected empty-segment frame to decode")
	}
	if len(name) != 0 || len(body) != 0 {
		t.Fatalf("decoded name=%q body=%x, want both empty", name, body)
	}
}

func TestDecodeReturnsCopies(t *testing.T) {
	frame := EncodePayload([]byte("a"), []byte{0x10})
	name, body, ok := DecodePayload(frame)
	if !ok {
		t.Fatalf("expected frame to decode")
	}

	frame[0] = 'z'
	frame[len(frame)-len(markerEOF)-1] = 0xff
	if name[0] != 'a' || body[0] != 0x10 {
		t.Fatalf("decoded segments alias the input buffer")
	}
}
