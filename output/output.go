// Package output turns processed telegrams into log messages, filters them
// and encodes them in the requested format.
package output

import (
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bemasher/wmbus/csv"
	"github.com/bemasher/wmbus/meter"
	"github.com/bemasher/wmbus/registry"
	"github.com/bemasher/wmbus/telegram"
)

const (
	TimeFormat = "2006-01-02T15:04:05.000"
)

var ErrUnknownFormat = errors.New("output: unknown format")

// LogMessage is one processed telegram as written to the output.
type LogMessage struct {
	XMLName xml.Name `json:"-" yaml:"-" xml:"Message"`

	Time         time.Time          `json:"time" yaml:"time" xml:"Time"`
	ID           string             `json:"id" yaml:"id" xml:"ID"`
	Index        int                `json:"index" yaml:"index" xml:"Index"`
	Kind         meter.Kind         `json:"kind" yaml:"kind" xml:"Kind"`
	Manufacturer string             `json:"manufacturer" yaml:"manufacturer" xml:"Manufacturer"`
	Serial       string             `json:"serial" yaml:"serial" xml:"Serial"`
	Version      uint8              `json:"version" yaml:"version" xml:"Version"`
	DeviceType   uint8              `json:"device_type" yaml:"device_type" xml:"DeviceType"`
	AccessNumber uint8              `json:"access_number" yaml:"access_number" xml:"AccessNumber"`
	Status       uint8              `json:"status" yaml:"status" xml:"Status"`
	Values       []telegram.Reading `json:"values" yaml:"values" xml:"Value"`
	Error        string             `json:"error,omitempty" yaml:"error,omitempty" xml:"Error,omitempty"`

	telegram *telegram.Telegram
}

func NewLogMessage(now time.Time, rec *registry.Record, t *telegram.Telegram, err error) LogMessage {
	msg := LogMessage{
		Time:         now,
		ID:           rec.ID(),
		Index:        rec.Index,
		Kind:         rec.Kind(),
		Manufacturer: t.Manufacturer(),
		Serial:       hex.EncodeToString(t.SerialNumber()),
		Version:      t.Version,
		DeviceType:   t.DeviceType,
		AccessNumber: t.AccessNumber,
		Status:       t.Status,
		Values:       t.Values,
		telegram:     t,
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// Telegram returns the telegram the message was built from.
func (msg LogMessage) Telegram() *telegram.Telegram {
	return msg.telegram
}

func (msg LogMessage) String() string {
	s := fmt.Sprintf("{Time:%s %s:{ID:%s Manufacturer:%s Serial:%s AccessNumber:%d Status:0x%02X Values:%s}",
		msg.Time.Format(TimeFormat), msg.Kind, msg.ID, msg.Manufacturer, msg.Serial,
		msg.AccessNumber, msg.Status, msg.Values,
	)
	if msg.Error != "" {
		s += " Error:" + strconv.Quote(msg.Error)
	}
	return s + "}"
}

func (msg LogMessage) Record() (r []string) {
	r = append(r, msg.Time.Format(time.RFC3339Nano))
	r = append(r, strconv.Itoa(msg.Index))
	r = append(r, msg.Kind.String())
	if msg.telegram != nil {
		r = append(r, msg.telegram.Record()...)
	} else {
		r = append(r, msg.ID)
		for _, v := range msg.Values {
			r = append(r, v.Record()...)
		}
	}
	return r
}

// JSON, XML and YAML all implement this interface so we can simplify log
// output formatting.
type Encoder interface {
	Encode(interface{}) error
}

// NewEncoder returns an encoder for one of plain, csv, json, xml or yaml.
func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch strings.ToLower(format) {
	case "plain":
		return PlainEncoder{w}, nil
	case "csv":
		return csv.NewEncoder(w), nil
	case "json":
		return json.NewEncoder(w), nil
	case "xml":
		return LineEncoder{xml.NewEncoder(w), w}, nil
	case "yaml":
		return yaml.NewEncoder(w), nil
	}
	return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
}

type PlainEncoder struct {
	w io.Writer
}

func (pe PlainEncoder) Encode(msg interface{}) (err error) {
	_, err = fmt.Fprintln(pe.w, msg)
	return
}

// LineEncoder terminates each element with a newline, xml.Encoder doesn't.
type LineEncoder struct {
	Encoder
	w io.Writer
}

func (le LineEncoder) Encode(msg interface{}) error {
	if err := le.Encoder.Encode(msg); err != nil {
		return err
	}
	_, err := io.WriteString(le.w, "\n")
	return err
}
