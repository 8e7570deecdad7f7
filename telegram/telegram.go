// Package telegram decodes wireless M-Bus link layer headers from frames
// received on the radio link endpoint.
package telegram

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bemasher/wmbus/stick"
)

// Radio link message ids.
const (
	WMBusMsgReq = 0x01
	WMBusMsgRsp = 0x02
	WMBusMsgInd = 0x03
	DataReq     = 0x04
	DataRsp     = 0x05
)

// SendNoReply is the SND_NR C-field meters use for unsolicited telegrams.
const SendNoReply = 0x44

// Smallest payload carrying a full link layer header.
const MinLength = 14

var ErrUnrecognizedCommand = errors.New("telegram: unrecognized radio command")

// Telegram is one over-the-air message. All offsets are into the frame
// payload, whose first byte is the L-field.
type Telegram struct {
	Length            byte
	Command           byte
	ManufacturerID    [2]byte // wire order
	DeviceIdentity    [8]byte // manufacturer, address, version, device type
	Version           byte
	DeviceType        byte
	ControlField      byte
	AccessNumber      byte
	Status            byte
	ConfigurationWord byte

	Raw    []byte
	Values []Reading
}

// Decode extracts the link layer fields from a radio link frame. Only
// SND_NR telegrams are accepted.
func Decode(f stick.Frame) (*Telegram, error) {
	p := f.Payload
	if len(p) >= 2 && p[1] != SendNoReply {
		return nil, errors.Wrapf(ErrUnrecognizedCommand, "c-field 0x%02X", p[1])
	}

	if len(p) < MinLength {
		return nil, errors.Wrapf(stick.ErrFrameTooShort, "telegram: payload has %d bytes, need %d", len(p), MinLength)
	}

	t := &Telegram{
		Length:            p[0],
		Command:           p[1],
		Version:           p[8],
		DeviceType:        p[9],
		ControlField:      p[10],
		AccessNumber:      p[11],
		Status:            p[12],
		ConfigurationWord: p[13],
	}
	copy(t.ManufacturerID[:], p[2:4])
	copy(t.DeviceIdentity[:], p[2:10])

	t.Raw = make([]byte, len(p))
	copy(t.Raw, p)

	return t, nil
}

// ID is the hex encoded device identity, used as the device key.
func (t *Telegram) ID() string {
	return hex.EncodeToString(t.DeviceIdentity[:])
}

// SerialNumber returns Raw[3:8] for display. It overlaps the second
// manufacturer byte and is not part of the device key.
func (t *Telegram) SerialNumber() []byte {
	return t.Raw[3:8]
}

// Manufacturer returns the three letter manufacturer code (EN 13757-3).
func (t *Telegram) Manufacturer() string {
	return ManufacturerCode(t.ManufacturerID)
}

// ManufacturerCode packs three letters into 5 bits each of the little
// endian manufacturer word.
func ManufacturerCode(id [2]byte) string {
	m := binary.LittleEndian.Uint16(id[:])
	return string([]byte{
		byte((m>>10)&0x1F) + 64,
		byte((m>>5)&0x1F) + 64,
		byte(m&0x1F) + 64,
	})
}

// AddValue appends a reading. A zero timestamp is replaced by now.
func (t *Telegram) AddValue(r Reading, now time.Time) {
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if r.Unit == "" {
		r.Unit = UnitUnset
	}
	t.Values = append(t.Values, r)
}

func (t *Telegram) String() string {
	var fields []string

	fields = append(fields, fmt.Sprintf("ID:%s", t.ID()))
	fields = append(fields, fmt.Sprintf("Manufacturer:%s", t.Manufacturer()))
	fields = append(fields, fmt.Sprintf("Version:0x%02X", t.Version))
	fields = append(fields, fmt.Sprintf("DeviceType:0x%02X", t.DeviceType))
	fields = append(fields, fmt.Sprintf("Length:%d", t.Length))
	fields = append(fields, fmt.Sprintf("ControlField:0x%02X", t.ControlField))
	fields = append(fields, fmt.Sprintf("AccessNumber:%d", t.AccessNumber))
	fields = append(fields, fmt.Sprintf("Status:0x%02X", t.Status))
	fields = append(fields, fmt.Sprintf("Values:%s", t.Values))

	return "{" + strings.Join(fields, " ") + "}"
}

// Record produces csv fields: the header followed by value, unit and kind
// of each reading.
func (t *Telegram) Record() (r []string) {
	r = append(r, t.ID())
	r = append(r, t.Manufacturer())
	r = append(r, fmt.Sprintf("0x%02X", t.Version))
	r = append(r, fmt.Sprintf("0x%02X", t.DeviceType))
	r = append(r, strconv.FormatUint(uint64(t.AccessNumber), 10))
	r = append(r, fmt.Sprintf("0x%02X", t.Status))
	for _, v := range t.Values {
		r = append(r, v.Record()...)
	}
	return r
}
