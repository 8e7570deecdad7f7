package telegram

import (
	"fmt"
	"strconv"
	"time"
)

// Kind classifies a reading.
type Kind int

const (
	Unknown Kind = iota
	Temperature
	Humidity
	Energy
	Volume
)

func (k Kind) String() string {
	switch k {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	case Energy:
		return "energy"
	case Volume:
		return "volume"
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

const (
	UnitCelsius  = "°C"
	UnitPercent  = "%"
	UnitWattHour = "Wh"
	UnitCubicM   = "m3"
	UnitUnset    = "unset"
)

// Reading is one decoded measurement.
type Reading struct {
	Value     float64   `json:"value" yaml:"value"`
	Unit      string    `json:"unit" yaml:"unit"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

func (r Reading) String() string {
	return fmt.Sprintf("{%s:%g%s}", r.Kind, r.Value, r.Unit)
}

func (r Reading) Record() []string {
	return []string{
		strconv.FormatFloat(r.Value, 'f', -1, 64),
		r.Unit,
		r.Kind.String(),
	}
}
