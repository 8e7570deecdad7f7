package devmgmt

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/bemasher/wmbus/stick"
)

// LinkMode is the radio link mode code used by the stick.
type LinkMode byte

var linkModes = map[LinkMode]string{
	0: "S1",
	1: "S1-m",
	2: "S2",
	3: "T1",
	4: "T2",
	5: "R2",
	6: "C1, Telegram Format A",
	7: "C1, Telegram Format B",
	8: "C2, Telegram Format A",
	9: "C2, Telegram Format B",
}

func (m LinkMode) String() string {
	if s, ok := linkModes[m]; ok {
		return s
	}
	return fmt.Sprintf("LinkMode(%d)", byte(m))
}

// ParseLinkMode looks up a link mode by its display name, case-insensitive.
func ParseLinkMode(name string) (LinkMode, error) {
	for code, s := range linkModes {
		if strings.EqualFold(s, name) {
			return code, nil
		}
	}

	var names []string
	for code := LinkMode(0); int(code) < len(linkModes); code++ {
		names = append(names, linkModes[code])
	}
	return 0, errors.Wrapf(ErrUnknownCode, "link mode %q, valid: %s", name, strings.Join(names, "; "))
}

// Channel is the radio channel code.
type Channel byte

var channels = map[Channel]string{
	1:  "868.09 MHz (R-Mode)",
	2:  "868.15 MHz (R-Mode)",
	3:  "868.21 MHz (R-Mode)",
	4:  "868.27 MHz (R-Mode)",
	5:  "868.33 MHz (R-Mode)",
	6:  "868.39 MHz (R-Mode)",
	7:  "868.45 MHz (R-Mode)",
	8:  "868.51 MHz (R-Mode)",
	9:  "868.57 MHz (R-Mode)",
	10: "868.30 MHz (S-Mode)",
	11: "868.09 MHz (T-Mode)",
}

func (c Channel) String() string {
	if s, ok := channels[c]; ok {
		return s
	}
	return fmt.Sprintf("Channel(%d)", byte(c))
}

// PowerLevel is the transmit power code.
type PowerLevel byte

var powerLevels = map[PowerLevel]string{
	0: "-8 dBm",
	1: "-5 dBm",
	2: "-2 dBm",
	3: "1 dBm",
	4: "4 dBm",
	5: "7 dBm",
	6: "10 dBm",
	7: "14 dBm",
}

func (p PowerLevel) String() string {
	if s, ok := powerLevels[p]; ok {
		return s
	}
	return fmt.Sprintf("PowerLevel(%d)", byte(p))
}

// Config is a snapshot of the stick configuration. A nil field was not
// present in the response it was decoded from.
type Config struct {
	DeviceMode     *byte
	LinkMode       *LinkMode
	CField         *byte
	ManufacturerID *string // display order, hex
	DeviceID       *string // display order, hex
	Version        *byte
	DeviceType     *byte
	RadioChannel   *Channel

	RadioPower      *PowerLevel
	DataRate        *byte
	RxWindow        *byte // milliseconds
	AutoPowerSaving *bool
	AutoRSSI        *bool
	AutoTimestamp   *bool
	LEDControl      *bool
	RTCControl      *bool
}

func (Config) MsgID() byte { return GetConfigRsp }

func (c Config) String() string {
	var fields []string

	add := func(name string, v interface{}) {
		fields = append(fields, fmt.Sprintf("%s:%v", name, v))
	}

	if c.DeviceMode != nil {
		mode := "Other"
		if *c.DeviceMode != 0 {
			mode = "Meter"
		}
		add("DeviceMode", mode)
	}
	if c.LinkMode != nil {
		add("LinkMode", *c.LinkMode)
	}
	if c.CField != nil {
		add("CField", fmt.Sprintf("0x%02X", *c.CField))
	}
	if c.ManufacturerID != nil {
		add("ManufacturerID", *c.ManufacturerID)
	}
	if c.DeviceID != nil {
		add("DeviceID", *c.DeviceID)
	}
	if c.Version != nil {
		add("Version", fmt.Sprintf("0x%02X", *c.Version))
	}
	if c.DeviceType != nil {
		add("DeviceType", fmt.Sprintf("0x%02X", *c.DeviceType))
	}
	if c.RadioChannel != nil {
		add("RadioChannel", *c.RadioChannel)
	}
	if c.RadioPower != nil {
		add("RadioPower", *c.RadioPower)
	}
	if c.DataRate != nil {
		add("DataRate", fmt.Sprintf("0x%02X", *c.DataRate))
	}
	if c.RxWindow != nil {
		add("RxWindow", fmt.Sprintf("%dms", *c.RxWindow))
	}
	if c.AutoPowerSaving != nil {
		add("AutoPowerSaving", *c.AutoPowerSaving)
	}
	if c.AutoRSSI != nil {
		add("AutoRSSI", *c.AutoRSSI)
	}
	if c.AutoTimestamp != nil {
		add("AutoTimestamp", *c.AutoTimestamp)
	}
	if c.LEDControl != nil {
		add("LEDControl", *c.LEDControl)
	}
	if c.RTCControl != nil {
		add("RTCControl", *c.RTCControl)
	}

	return "{" + strings.Join(fields, " ") + "}"
}

// A configField describes one optional field of the configuration block. Each
// indicator byte selects up to eight fields, scanned from bit 0 to bit 7.
type configField struct {
	mask  byte
	width int

	// decode stores b (exactly width bytes) into c.
	decode func(c *Config, b []byte) error
	// encode returns the wire bytes for the field, or nil if c lacks it.
	encode func(c Config) []byte
}

// Fields selected by the first and second indicator byte, in scan order.
var configFields = [2][]configField{
	{
		{0x01, 1,
			func(c *Config, b []byte) error { c.DeviceMode = byteField(b); return nil },
			func(c Config) []byte { return optByte(c.DeviceMode) }},
		{0x02, 1,
			func(c *Config, b []byte) error {
				mode := LinkMode(b[0])
				if _, ok := linkModes[mode]; !ok {
					return errors.Wrapf(ErrUnknownCode, "link mode %d", b[0])
				}
				c.LinkMode = &mode
				return nil
			},
			func(c Config) []byte {
				if c.LinkMode == nil {
					return nil
				}
				return []byte{byte(*c.LinkMode)}
			}},
		{0x04, 1,
			func(c *Config, b []byte) error { c.CField = byteField(b); return nil },
			func(c Config) []byte { return optByte(c.CField) }},
		{0x08, 2,
			func(c *Config, b []byte) error { c.ManufacturerID = reversedHex(b); return nil },
			func(c Config) []byte { return optReversedHex(c.ManufacturerID, 2) }},
		{0x10, 4,
			func(c *Config, b []byte) error { c.DeviceID = reversedHex(b); return nil },
			func(c Config) []byte { return optReversedHex(c.DeviceID, 4) }},
		{0x20, 1,
			func(c *Config, b []byte) error { c.Version = byteField(b); return nil },
			func(c Config) []byte { return optByte(c.Version) }},
		{0x40, 1,
			func(c *Config, b []byte) error { c.DeviceType = byteField(b); return nil },
			func(c Config) []byte { return optByte(c.DeviceType) }},
		{0x80, 1,
			func(c *Config, b []byte) error {
				ch := Channel(b[0])
				if _, ok := channels[ch]; !ok {
					return errors.Wrapf(ErrUnknownCode, "radio channel %d", b[0])
				}
				c.RadioChannel = &ch
				return nil
			},
			func(c Config) []byte {
				if c.RadioChannel == nil {
					return nil
				}
				return []byte{byte(*c.RadioChannel)}
			}},
	},
	{
		{0x01, 1,
			func(c *Config, b []byte) error {
				p := PowerLevel(b[0])
				if _, ok := powerLevels[p]; !ok {
					return errors.Wrapf(ErrUnknownCode, "radio power %d", b[0])
				}
				c.RadioPower = &p
				return nil
			},
			func(c Config) []byte {
				if c.RadioPower == nil {
					return nil
				}
				return []byte{byte(*c.RadioPower)}
			}},
		{0x02, 1,
			func(c *Config, b []byte) error { c.DataRate = byteField(b); return nil },
			func(c Config) []byte { return optByte(c.DataRate) }},
		{0x04, 1,
			func(c *Config, b []byte) error { c.RxWindow = byteField(b); return nil },
			func(c Config) []byte { return optByte(c.RxWindow) }},
		{0x08, 1,
			func(c *Config, b []byte) error { c.AutoPowerSaving = boolField(b); return nil },
			func(c Config) []byte { return optBool(c.AutoPowerSaving) }},
		{0x10, 1,
			func(c *Config, b []byte) error { c.AutoRSSI = boolField(b); return nil },
			func(c Config) []byte { return optBool(c.AutoRSSI) }},
		{0x20, 1,
			func(c *Config, b []byte) error { c.AutoTimestamp = boolField(b); return nil },
			func(c Config) []byte { return optBool(c.AutoTimestamp) }},
		{0x40, 1,
			func(c *Config, b []byte) error { c.LEDControl = boolField(b); return nil },
			func(c Config) []byte { return optBool(c.LEDControl) }},
		{0x80, 1,
			func(c *Config, b []byte) error { c.RTCControl = boolField(b); return nil },
			func(c Config) []byte { return optBool(c.RTCControl) }},
	},
}

// DecodeConfig parses a get-config response payload. payload[0] is the frame
// length byte, the first indicator byte follows it. The whole decode fails on
// the first unknown table code since later offsets can't be trusted.
func DecodeConfig(payload []byte) (c Config, err error) {
	offset := 1

	for group, fields := range configFields {
		if offset >= len(payload) {
			return c, errors.Wrapf(stick.ErrFrameTooShort, "config: indicator %d at offset %d", group+1, offset)
		}
		indicator := payload[offset]
		offset++

		for _, field := range fields {
			if indicator&field.mask == 0 {
				continue
			}

			if offset+field.width > len(payload) {
				return c, errors.Wrapf(stick.ErrFrameTooShort,
					"config: field 0x%02X of indicator %d at offset %d", field.mask, group+1, offset,
				)
			}

			if err := field.decode(&c, payload[offset:offset+field.width]); err != nil {
				return c, errors.Wrapf(err, "config: offset %d", offset)
			}
			offset += field.width
		}
	}

	return c, nil
}

// EncodeConfig produces a set-config body for every non-nil field of c: two
// indicator bytes, each followed by the fields it selects.
func EncodeConfig(c Config) (body []byte) {
	for _, fields := range configFields {
		var indicator byte
		var data []byte
		for _, field := range fields {
			if b := field.encode(c); b != nil {
				indicator |= field.mask
				data = append(data, b...)
			}
		}
		body = append(body, indicator)
		body = append(body, data...)
	}
	return body
}

func byteField(b []byte) *byte {
	v := b[0]
	return &v
}

func boolField(b []byte) *bool {
	v := b[0] != 0
	return &v
}

func reversedHex(b []byte) *string {
	r := make([]byte, len(b))
	for idx := range b {
		r[len(b)-1-idx] = b[idx]
	}
	s := hex.EncodeToString(r)
	return &s
}

func optByte(v *byte) []byte {
	if v == nil {
		return nil
	}
	return []byte{*v}
}

func optBool(v *bool) []byte {
	if v == nil {
		return nil
	}
	if *v {
		return []byte{1}
	}
	return []byte{0}
}

// optReversedHex converts a display order hex string back to wire order. A
// malformed or wrongly sized string is treated as absent.
func optReversedHex(v *string, width int) []byte {
	if v == nil {
		return nil
	}
	b, err := hex.DecodeString(*v)
	if err != nil || len(b) != width {
		return nil
	}
	r := make([]byte, width)
	for idx := range b {
		r[width-1-idx] = b[idx]
	}
	return r
}
