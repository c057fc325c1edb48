package session

import "bytes"

// Wire markers. Frame boundaries are found by scanning the receive buffer
// for these literal byte sequences; names and bodies containing them will
// corrupt framing. This is the legacy wire contract, kept as-is.
const (
	markerPublic  = "PUBLIC"
	markerPayload = "PAYLOAD"
	markerEOF     = "EOF"
)

// EncodeKeyMaterial frames a public value as PUBLIC + value + EOF.
func EncodeKeyMaterial(public []byte) []byte {
	frame := make([]byte, 0, len(markerPublic)+len(public)+len(markerEOF))
	frame = append(frame, markerPublic...)
	frame = append(frame, public...)
	frame = append(frame, markerEOF...)
	return frame
}

// DecodeKeyMaterial scans buf for a complete key-material frame and returns
// the enclosed public value. ok is false while the frame is incomplete; the
// caller keeps buffering.
func DecodeKeyMaterial(buf []byte) (public []byte, ok bool) {
	start := bytes.Index(buf, []byte(markerPublic))
	end := bytes.Index(buf, []byte(markerEOF))
	if start < 0 || end < 0 {
		return nil, false
	}

	start += len(markerPublic)
	if end < start {
		return nil, false
	}

	return append([]byte(nil), buf[start:end]...), true
}

// EncodePayload frames a named payload as name + PAYLOAD + body + EOF.
func EncodePayload(name, body []byte) []byte {
	frame := make([]byte, 0, len(name)+len(markerPayload)+len(body)+len(markerEOF))
	frame = append(frame, name...)
	frame = append(frame, markerPayload...)
	frame = append(frame, body...)
	frame = append(frame, markerEOF...)
	return frame
}

// DecodePayload scans buf for a complete payload frame and splits it into
// the name segment (bytes before PAYLOAD) and the body segment (bytes
// between PAYLOAD and EOF). ok is false while the frame is incomplete.
func DecodePayload(buf []byte) (name, body []byte, ok bool) {
	sep := bytes.Index(buf, []byte(markerPayload))
	end := bytes.Index(buf, []byte(markerEOF))
	if sep < 0 || end < 0 {
		return nil, nil, false
	}

	bodyStart := sep + len(markerPayload)
	if end < bodyStart {
		return nil, nil, false
	}

	name = append([]byte(nil), buf[:sep]...)
	body = append([]byte(nil), buf[bodyStart:end]...)
	return name, body, true
}
