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
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/bemasher/wmbus/telegram"
)

// Declared telegram lengths (L-field) per sensor version.
const (
	WeptechV1Length = 30
	WeptechV2Length = 46
)

// Weptech decodes OMS temperature (v1) and temperature/humidity (v2)
// sensors.
type Weptech struct {
	kind   Kind
	cfg    Config
	length byte

	state State
}

func newWeptech(kind Kind, cfg Config) *Weptech {
	w := &Weptech{kind: kind, cfg: cfg, length: WeptechV1Length}
	if kind == WeptechOMSv2 {
		w.length = WeptechV2Length
	}
	return w
}

func (w *Weptech) Kind() Kind   { return w.kind }
func (w *Weptech) State() State { return w.state }

func (w *Weptech) Decode(t *telegram.Telegram) (readings []telegram.Reading, err error) {
	log := w.cfg.Log.WithField("device", t.ID())

	if t.Length != w.length {
		return nil, errors.Wrapf(ErrInvalidMessageLength, "%s: length %d, want %d", w.kind, t.Length, w.length)
	}

	now := w.cfg.Clock()

	fields := []struct {
		kind     telegram.Kind
		unit     string
		from, to int
	}{
		{telegram.Temperature, telegram.UnitCelsius, 19, 21},
		{telegram.Humidity, telegram.UnitPercent, 24, 26},
	}
	if w.kind == WeptechOMSv1 {
		fields = fields[:1]
	}

	for _, f := range fields {
		if len(t.Raw) < f.to {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidMessageLength, "%s block at [%d:%d)", f.kind, f.from, f.to))
			continue
		}

		v, decodeErr := DecodeValueBlock(t.Raw[f.from:f.to])
		if decodeErr != nil {
			log.WithError(decodeErr).Errorf("failed to decode %s, AES encryption may be enabled", f.kind)
			err = multierr.Append(err, decodeErr)
			continue
		}

		log.Infof("%s: %g%s", f.kind, v, f.unit)
		readings = append(readings, telegram.Reading{Value: v, Unit: f.unit, Kind: f.kind, Timestamp: now})
	}

	log.WithFields(logrus.Fields{
		"access_number": t.AccessNumber,
		"status":        t.Status,
	}).Debug("weptech measurement")

	w.state.update(now, readings)

	return readings, err
}

// DecodeValueBlock decodes a two byte BCD block. A second byte of 0xA0 or
// more marks a negative value, its upper nibble complemented.
func DecodeValueBlock(b []byte) (float64, error) {
	if len(b) != 2 {
		return 0, errors.Wrapf(ErrValueDecode, "value block has %d bytes", len(b))
	}

	lo, err := bcd(b[0])
	if err != nil {
		return 0, err
	}

	if b[1] < 0xA0 {
		hi, err := bcd(b[1])
		if err != nil {
			return 0, err
		}
		return float64(lo)/10 + float64(hi)*10, nil
	}

	hi, err := bcd(b[1] ^ 0xF0)
	if err != nil {
		return 0, err
	}
	return -float64(lo)/10 - float64(hi)*10, nil
}

// bcd reads the hex digits of b as a decimal number.
func bcd(b byte) (uint64, error) {
	hex := strconv.FormatUint(uint64(b), 16)
	v, err := strconv.ParseUint(hex, 10, 8)
	if err != nil {
		return 0, errors.Wrapf(ErrValueDecode, "invalid bcd byte 0x%02X", b)
	}
	return v, nil
}
