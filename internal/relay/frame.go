package relay

import (
	"encoding/binary"
	"fmt"
	"io"

	"portfwd/internal/domain"
	"portfwd/internal/protocol/sessioncipher"
)

const (
	frameHeader = 4
	maxFrame    = sessioncipher.MaxSealedChunk
)

// writeFrame writes one length-prefixed chunk in a single Write so frames
// from one loop are never interleaved.
func writeFrame(w io.Writer, chunk []byte) error {
	if len(chunk) > maxFrame {
		return fmt.Errorf("frame of %d bytes exceeds %d", len(chunk), maxFrame)
	}
	buf := make([]byte, frameHeader+len(chunk))
	binary.BigEndian.PutUint32(buf, uint32(len(chunk)))
	copy(buf[frameHeader:], chunk)
	_, err := w.Write(buf)
	return err
}

// readFrame returns the next chunk. A clean end of stream between frames is
// io.EOF; inside a frame it is io.ErrUnexpectedEOF. An impossible length is
// reported as domain.ErrDecryption.
func readFrame(r io.Reader) ([]byte, error) {
	var header [frameHeader]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrame {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", domain.ErrDecryption, n, maxFrame)
	}
	chunk := make([]byte, n)
	if _, err := io.ReadFull(r, chunk); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return chunk, nil
}
