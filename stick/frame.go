// Package stick implements the host to radio stick framing used by the iM871A
// family of wireless M-Bus USB modems.
//
//	0xA5 | control(1) | message id(1) | length(1) | payload | [timestamp(4)] | [rssi(1)] | [crc(2)]
//
// The upper nibble of the control byte carries the trailer flags, the lower
// nibble the endpoint id.
package stick

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	StartOfFrame = 0xA5

	// Smallest possible frame: start, control, message id and length.
	HeaderLength = 4

	TimestampLength = 4
	RSSILength      = 1
	CRCLength       = 2
)

// Control field flags, after shifting the control byte right by four.
const (
	FlagTimestamp = 0x2
	FlagRSSI      = 0x4
	FlagCRC       = 0x8
)

var (
	ErrNotFrame        = errors.New("stick: missing start of frame")
	ErrFrameTooShort   = errors.New("stick: frame too short")
	ErrPayloadTooLong  = errors.New("stick: payload too long")
	ErrUnknownEndpoint = errors.New("stick: unknown endpoint")
)

// EndpointID addresses a logical channel on the stick.
type EndpointID uint8

const (
	DeviceManagement EndpointID = 0x1
	RadioLink        EndpointID = 0x2
	RadioLinkTest    EndpointID = 0x3
	HardwareTest     EndpointID = 0x4
)

func (e EndpointID) String() string {
	switch e {
	case DeviceManagement:
		return "DevMgmt"
	case RadioLink:
		return "RadioLink"
	case RadioLinkTest:
		return "RadioLinkTest"
	case HardwareTest:
		return "HWTest"
	}
	return fmt.Sprintf("Endpoint(0x%X)", uint8(e))
}

// Frame is one decoded host/stick message. Frames returned by Decode own
// their byte slices and must be treated as read-only.
type Frame struct {
	EndpointID EndpointID
	MessageID  byte

	// Payload starts with the length byte, so Payload[0] is the declared
	// length and Payload[1] the first data byte.
	Payload []byte

	HasTimestamp bool
	HasRSSI      bool
	HasCRC       bool

	Timestamp []byte
	RSSI      byte
	CRC       []byte
}

// Length returns the declared payload length.
func (f Frame) Length() int {
	if len(f.Payload) == 0 {
		return 0
	}
	return int(f.Payload[0])
}

// Data returns the payload without its leading length byte.
func (f Frame) Data() []byte {
	if len(f.Payload) == 0 {
		return nil
	}
	return f.Payload[1:]
}

func (f Frame) String() string {
	s := fmt.Sprintf("{Endpoint:%s MsgID:0x%02X Length:%d Payload:%02X",
		f.EndpointID, f.MessageID, f.Length(), f.Data(),
	)
	if f.HasTimestamp {
		s += fmt.Sprintf(" Timestamp:%02X", f.Timestamp)
	}
	if f.HasRSSI {
		s += fmt.Sprintf(" RSSI:%d", f.RSSI)
	}
	if f.HasCRC {
		s += fmt.Sprintf(" CRC:%02X", f.CRC)
	}
	return s + "}"
}

// FrameLength returns the total number of bytes a frame starting with the
// given header occupies, trailer fields included.
func FrameLength(header []byte) (int, error) {
	if len(header) < HeaderLength {
		return 0, errors.Wrapf(ErrFrameTooShort, "need %d header bytes, have %d", HeaderLength, len(header))
	}
	if header[0] != StartOfFrame {
		return 0, ErrNotFrame
	}

	control := header[1] >> 4
	n := HeaderLength + int(header[3])
	if control&FlagTimestamp != 0 {
		n += TimestampLength
	}
	if control&FlagRSSI != 0 {
		n += RSSILength
	}
	if control&FlagCRC != 0 {
		n += CRCLength
	}
	return n, nil
}

// Decode parses a single frame from buf. The CRC is captured but never
// checked. Bytes past the frame are ignored, except that the CRC is always
// taken from the final two bytes of buf.
func Decode(buf []byte) (f Frame, err error) {
	n, err := FrameLength(buf)
	if err != nil {
		return f, err
	}
	if len(buf) < n {
		return f, errors.Wrapf(ErrFrameTooShort, "frame needs %d bytes, have %d", n, len(buf))
	}

	control := buf[1] >> 4
	f.EndpointID = EndpointID(buf[1] & 0xF)
	f.MessageID = buf[2]
	f.HasTimestamp = control&FlagTimestamp != 0
	f.HasRSSI = control&FlagRSSI != 0
	f.HasCRC = control&FlagCRC != 0

	end := HeaderLength + int(buf[3])
	f.Payload = make([]byte, end-3)
	copy(f.Payload, buf[3:end])

	if f.HasTimestamp {
		f.Timestamp = make([]byte, TimestampLength)
		copy(f.Timestamp, buf[end:end+TimestampLength])
		end += TimestampLength
	}

	if f.HasRSSI {
		f.RSSI = buf[end]
	}

	if f.HasCRC {
		f.CRC = make([]byte, CRCLength)
		copy(f.CRC, buf[len(buf)-CRCLength:])
	}

	return f, nil
}

// Encode builds an outbound frame. Outbound frames never request trailer
// fields, so the control byte is just the endpoint id.
func Encode(endpoint EndpointID, msgID byte, payload []byte) ([]byte, error) {
	if len(payload) > 0xFF {
		return nil, errors.Wrapf(ErrPayloadTooLong, "%d bytes", len(payload))
	}

	buf := make([]byte, 0, HeaderLength+len(payload))
	buf = append(buf, StartOfFrame, byte(0<<4)|byte(endpoint&0xF), msgID, byte(len(payload)))
	buf = append(buf, payload...)

	return buf, nil
}
