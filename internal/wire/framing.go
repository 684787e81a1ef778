// Package wire defines the JSON message shapes and framing shared by
// the remote-client and console protocols (spec.md §6). The console
// protocol is unencrypted (trust boundary is filesystem permissions);
// this package's ReadFrame/WriteFrame/SendJSON/ReceiveJSON serve it
// directly. The remote-client protocol additionally wraps every frame
// after the handshake in a cryptostream.SymmetricStream envelope — wire
// only supplies the message *shapes* there, not the framing, since
// SymmetricStream already frames one JSON document per call.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"io"
)

const maxFrameBytes = 16 << 20 // 16 MiB, matches cryptostream's bound

// WriteFrame writes buf as a length-prefixed frame: a network-order
// unsigned 32-bit length followed by buf.
func WriteFrame(w io.Writer, buf []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, io.ErrShortBuffer
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// SendJSON JSON-encodes v and writes it as a length-prefixed frame.
func SendJSON(w io.Writer, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, buf)
}

// ReceiveJSON reads one length-prefixed frame and JSON-decodes it into v.
func ReceiveJSON(r io.Reader, v any) error {
	buf, err := ReadFrame(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}
