package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Version is the wire format version carried in every record header.
	Version = 1

	headerLength = 6 // version u8 | type u8 | length u32
	maxPayload   = 64 * 1024
	maxField     = 0xffff
)

type recordType uint8

const (
	typeClientHello     recordType = 1
	typeServerHello     recordType = 2
	typeForwardRequest  recordType = 3
	typeForwardResponse recordType = 4
	typeFinish          recordType = 5
	typeFinishAck       recordType = 6
	typeAlert           recordType = 0x7f
)

func (t recordType) String() string {
	switch t {
	case typeClientHello:
		return "ClientHello"
	case typeServerHello:
		return "ServerHello"
	case typeForwardRequest:
		return "ForwardRequest"
	case typeForwardResponse:
		return "ForwardResponse"
	case typeFinish:
		return "Finish"
	case typeFinishAck:
		return "FinishAck"
	case typeAlert:
		return "Alert"
	default:
		return fmt.Sprintf("record(%#x)", uint8(t))
	}
}

var (
	errMalformed = errors.New("malformed message")
	errVersion   = errors.New("unsupported protocol version")
)

// writeRecord frames payload and writes it in one call. It returns the raw
// record bytes for the transcript.
func writeRecord(w io.Writer, typ recordType, payload []byte) ([]byte, error) {
	if len(payload) > maxPayload {
		return nil, fmt.Errorf("%s payload of %d bytes exceeds %d", typ, len(payload), maxPayload)
	}
	raw := make([]byte, headerLength+len(payload))
	raw[0] = Version
	raw[1] = byte(typ)
	binary.BigEndian.PutUint32(raw[2:headerLength], uint32(len(payload)))
	copy(raw[headerLength:], payload)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// readRecord reads one framed record. raw is header plus payload.
func readRecord(r io.Reader) (typ recordType, payload, raw []byte, err error) {
	var header [headerLength]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return 0, nil, nil, err
	}
	if header[0] != Version {
		return 0, nil, nil, fmt.Errorf("%w: %d", errVersion, header[0])
	}
	n := binary.BigEndian.Uint32(header[2:])
	if n > maxPayload {
		return 0, nil, nil, fmt.Errorf("%w: payload of %d bytes", errMalformed, n)
	}
	raw = make([]byte, headerLength+int(n))
	copy(raw, header[:])
	if _, err = io.ReadFull(r, raw[headerLength:]); err != nil {
		return 0, nil, nil, err
	}
	return recordType(header[1]), raw[headerLength:], raw, nil
}

// encoder appends fields: byte strings are u16 length prefixed, integers are
// big endian.
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) bytes(b []byte) {
	if len(b) > maxField {
		e.err = fmt.Errorf("field of %d bytes exceeds %d", len(b), maxField)
		return
	}
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) string(s string) { e.bytes([]byte(s)) }

func (e *encoder) uint16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }

func (e *encoder) uint8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) result() ([]byte, error) { return e.buf, e.err }

// decoder reads fields written by encoder. The first error sticks.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fail() {
	if d.err == nil {
		d.err = errMalformed
	}
}

func (d *decoder) bytes() []byte {
	if d.err != nil || len(d.buf) < 2 {
		d.fail()
		return nil
	}
	n := int(binary.BigEndian.Uint16(d.buf))
	if len(d.buf) < 2+n {
		d.fail()
		return nil
	}
	out := d.buf[2 : 2+n]
	d.buf = d.buf[2+n:]
	return out
}

// fixed reads a byte string that must be exactly n bytes long.
func (d *decoder) fixed(n int) []byte {
	b := d.bytes()
	if d.err == nil && len(b) != n {
		d.fail()
		return nil
	}
	return b
}

func (d *decoder) string() string { return string(d.bytes()) }

func (d *decoder) uint16() uint16 {
	if d.err != nil || len(d.buf) < 2 {
		d.fail()
		return 0
	}
	v := binary.BigEndian.Uint16(d.buf)
	d.buf = d.buf[2:]
	return v
}

func (d *decoder) uint8() uint8 {
	if d.err != nil || len(d.buf) < 1 {
		d.fail()
		return 0
	}
	v := d.buf[0]
	d.buf = d.buf[1:]
	return v
}

// finish reports the sticky error, or trailing bytes.
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if len(d.buf) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", errMalformed, len(d.buf))
	}
	return nil
}
