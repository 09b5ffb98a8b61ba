package ctrlproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameLen is the largest payload this package will read from an
// untrusted length prefix, regardless of the value the prefix claims.
const MaxFrameLen = 64 * 1024

// lenPrefixLen is the size, in bytes, of the frame length prefix.
const lenPrefixLen = 4

// readFrame reads one length-prefixed frame from r: a u32 LE length followed
// by that many bytes of payload.  The claimed length is clamped to
// [MaxFrameLen] before the read, so a malicious or corrupt peer cannot make
// the caller allocate an unbounded buffer.
func readFrame(r io.Reader) (payload []byte, err error) {
	var lenBuf [lenPrefixLen]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("reading frame length: %w", err)
	}

	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameLen {
		n = MaxFrameLen
	}

	payload = make([]byte, n)
	if _, err = io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return payload, nil
}

// writeFrame writes payload to w as one length-prefixed frame.
func writeFrame(w io.Writer, payload []byte) (err error) {
	var lenBuf [lenPrefixLen]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err = w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}

	if _, err = w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}

	return nil
}
