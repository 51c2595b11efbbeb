package handshake

import (
	"fmt"
	"io"
)

// AlertCode tells the client why the server aborted the handshake.
type AlertCode uint8

const (
	AlertDecodeError       AlertCode = 1
	AlertUnexpectedMessage AlertCode = 2
	AlertBadCertificate    AlertCode = 3
	AlertAccessDenied      AlertCode = 4
	AlertUnreachable       AlertCode = 5
	AlertBadFinished       AlertCode = 6
	AlertInternal          AlertCode = 7
)

func (c AlertCode) String() string {
	switch c {
	case AlertDecodeError:
		return "decode error"
	case AlertUnexpectedMessage:
		return "unexpected message"
	case AlertBadCertificate:
		return "bad certificate"
	case AlertAccessDenied:
		return "access denied"
	case AlertUnreachable:
		return "target unreachable"
	case AlertBadFinished:
		return "bad finished"
	case AlertInternal:
		return "internal error"
	default:
		return fmt.Sprintf("alert(%d)", uint8(c))
	}
}

// Alert aborts the handshake. It is sent in place of any server response.
type Alert struct {
	Code   AlertCode
	Reason string
}

func (a *Alert) Error() string {
	if a.Reason == "" {
		return "peer alert: " + a.Code.String()
	}
	return fmt.Sprintf("peer alert: %s: %s", a.Code, a.Reason)
}

func (a *Alert) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint8(uint8(a.Code))
	e.string(a.Reason)
	return e.result()
}

func (a *Alert) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}
	a.Code = AlertCode(d.uint8())
	a.Reason = d.string()
	if err := d.finish(); err != nil {
		return fmt.Errorf("Alert: %w", err)
	}
	return nil
}

// sendAlert writes an alert. Write errors are ignored.
func sendAlert(w io.Writer, code AlertCode, reason string) {
	a := Alert{Code: code, Reason: reason}
	payload, err := a.MarshalBinary()
	if err != nil {
		return
	}
	_, _ = writeRecord(w, typeAlert, payload)
}
