// WMBUS - A receiver for wireless M-Bus meters using iM871A radio sticks.
// Copyright (C) 2020 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package meter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/bemasher/wmbus/telegram"
)

const (
	difOffset = 17

	difExtension  = 0x80
	difErrorState = 0x30

	vifExtension = 0x80
	vifUnitMask  = 0x78
	vifExpMask   = 0x07
)

// Both bytes equal 0x2F once the stick has decrypted the payload.
var decryptionCheck = [2]byte{0x2F, 0x2F}

var meterTypes = map[byte]string{
	1:  "Oil",
	2:  "Energy (electricity)",
	3:  "Gas",
	7:  "Water",
	15: "Unknown",
}

var units = map[byte]string{
	0: telegram.UnitWattHour,
	2: telegram.UnitCubicM,
}

// MeterTypeName returns the medium a meter type byte denotes.
func MeterTypeName(meterType byte) string {
	if name, ok := meterTypes[meterType]; ok {
		return name
	}
	return fmt.Sprintf("MeterType(0x%02X)", meterType)
}

// EnergyCamDecoder reads the single value an EnergyCam optical reader
// reports for the meter it is mounted on.
type EnergyCamDecoder struct {
	MeterType byte

	cfg   Config
	state State
}

func newEnergyCam(meterType byte, cfg Config) *EnergyCamDecoder {
	return &EnergyCamDecoder{MeterType: meterType, cfg: cfg}
}

func (e *EnergyCamDecoder) Kind() Kind   { return EnergyCam }
func (e *EnergyCamDecoder) State() State { return e.state }

// Medium is the human readable meter type.
func (e *EnergyCamDecoder) Medium() string {
	return MeterTypeName(e.MeterType)
}

func (e *EnergyCamDecoder) Decode(t *telegram.Telegram) ([]telegram.Reading, error) {
	log := e.cfg.Log.WithField("device", t.ID())
	raw := t.Raw

	log.Infof("message from %s meter", e.Medium())
	log.Debugf("raw message: %02X", raw)

	if len(raw) < difOffset {
		return nil, errors.Wrapf(ErrInvalidMessageLength, "energycam: %d bytes", len(raw))
	}

	if raw[15] != decryptionCheck[0] || raw[16] != decryptionCheck[1] {
		log.Debugf("decryption check: %02X", raw[15:17])
		log.Error("received encrypted message, disable encryption or set the AES key for the device")
		return nil, errors.Wrapf(ErrEncryptedPayload, "energycam: decryption check %02X", raw[15:17])
	}

	if len(raw) < difOffset+1 {
		return nil, errors.Wrapf(ErrInvalidMessageLength, "energycam: missing DIF, %d bytes", len(raw))
	}

	offset := difOffset
	dif := raw[offset]
	log.Debugf("DIF: %02X", dif)

	if dif&difErrorState == difErrorState {
		log.Warn("received stale value, energycam failed to read a new one")
	}
	if dif&difExtension != 0 {
		log.Warn("multiple data information fields are unsupported, ignoring extension")
		offset++
	}
	offset++

	if len(raw) < offset+1 {
		return nil, errors.Wrapf(ErrInvalidMessageLength, "energycam: missing VIF at %d", offset)
	}

	vif := raw[offset]
	log.Debugf("VIF: %02X", vif)

	unitCode := (vif & vifUnitMask) >> 3
	unit, ok := units[unitCode]
	if !ok {
		log.Warnf("unknown unit code %d, using %q", unitCode, telegram.UnitUnset)
		unit = telegram.UnitUnset
	}
	exponent := vif & vifExpMask

	if vif&vifExtension != 0 {
		log.Warn("multiple value information fields are unsupported, ignoring extension")
		offset++
	}
	offset++

	if len(raw) < offset+4 {
		return nil, errors.Wrapf(ErrInvalidMessageLength, "energycam: value needs bytes [%d:%d), have %d", offset, offset+4, len(raw))
	}

	rawValue := binary.LittleEndian.Uint32(raw[offset : offset+4])
	value := float64(rawValue) / math.Pow10(int(exponent))

	log.Debugf("raw value: %d exponent: %d", rawValue, exponent)
	log.Infof("%s: %g %s", e.Medium(), value, unit)

	now := e.cfg.Clock()
	readings := []telegram.Reading{{
		Value:     value,
		Unit:      unit,
		Kind:      unitKind(unit),
		Timestamp: now,
	}}

	e.state.update(now, readings)

	return readings, nil
}

func unitKind(unit string) telegram.Kind {
	switch unit {
	case telegram.UnitWattHour:
		return telegram.Energy
	case telegram.UnitCubicM:
		return telegram.Volume
	}
	return telegram.Unknown
}
