// Package meter holds the manufacturer specific payload decoders and the
// selection of a decoder for a newly seen device.
package meter

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/wmbus/telegram"
)

// Manufacturer ids in wire order.
var (
	WeptechID   = [2]byte{0xB0, 0x5C}
	FastForward = [2]byte{0xC4, 0x18}
	IMST        = [2]byte{0xB3, 0x25}
	MockID      = [2]byte{0xFF, 0xFF}
)

var (
	ErrUnknownManufacturer  = errors.New("meter: unknown manufacturer")
	ErrUnsupportedVersion   = errors.New("meter: unsupported device version")
	ErrInvalidMessageLength = errors.New("meter: invalid message length")
	ErrValueDecode          = errors.New("meter: value decode failed")
	ErrEncryptedPayload     = errors.New("meter: encrypted payload")
)

// Kind identifies a decoder variant.
type Kind int

const (
	WeptechOMSv1 Kind = iota
	WeptechOMSv2
	EnergyCam
	Mock
)

func (k Kind) String() string {
	switch k {
	case WeptechOMSv1:
		return "WeptechOMSv1"
	case WeptechOMSv2:
		return "WeptechOMSv2"
	case EnergyCam:
		return "EnergyCam"
	case Mock:
		return "MockDevice"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// A Decoder turns telegrams from one device into readings. Decoders keep
// per-device state and are not safe for concurrent use.
type Decoder interface {
	Kind() Kind
	Decode(*telegram.Telegram) ([]telegram.Reading, error)
	State() State
}

// State is the bookkeeping every decoder keeps about its device.
type State struct {
	UpdatedAt time.Time
	Updates   int
	Last      []telegram.Reading
}

func (s *State) update(now time.Time, readings []telegram.Reading) {
	s.UpdatedAt = now
	s.Updates++
	if len(readings) > 0 {
		s.Last = readings
	}
}

// Config carries the collaborators shared by all decoders.
type Config struct {
	Clock func() time.Time
	Log   logrus.FieldLogger
}

func (cfg Config) withDefaults() Config {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return cfg
}

// New selects a decoder by manufacturer, then version. deviceType is the
// byte at payload offset 9 and parameterizes EnergyCam decoders.
func New(manufacturer [2]byte, version, deviceType byte, cfg Config) (Decoder, error) {
	cfg = cfg.withDefaults()

	switch manufacturer {
	case WeptechID:
		switch version {
		case 1:
			return newWeptech(WeptechOMSv1, cfg), nil
		case 2:
			return newWeptech(WeptechOMSv2, cfg), nil
		}
		return nil, errors.Wrapf(ErrUnsupportedVersion, "weptech version %d", version)
	case FastForward:
		if version == 1 {
			return newEnergyCam(deviceType, cfg), nil
		}
		return nil, errors.Wrapf(ErrUnsupportedVersion, "fastforward version %d", version)
	case MockID:
		return newMock(cfg), nil
	}

	return nil, errors.Wrapf(ErrUnknownManufacturer, "manufacturer %s (%02X)",
		telegram.ManufacturerCode(manufacturer), manufacturer[:],
	)
}
