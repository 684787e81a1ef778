package cryptostream

import (
	"encoding/binary"
	"io"
)

// maxFrameBytes bounds a single length-prefixed frame to guard against a
// hostile or corrupt peer claiming an enormous length.
const maxFrameBytes = 16 << 20 // 16 MiB

// writeFrame writes buf as a length-prefixed frame: a network-order
// unsigned 32-bit length followed by buf itself (spec.md §6 framing).
func writeFrame(w io.Writer, buf []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// readFrame reads one length-prefixed frame from r.
func readFrame(r io.Reader) ([]byte, error) {
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
