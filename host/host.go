// Package host routes frames from the radio stick to the device management
// and telegram decoders and reports what happened as events.
package host

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/wmbus/devmgmt"
	"github.com/bemasher/wmbus/metrics"
	"github.com/bemasher/wmbus/registry"
	"github.com/bemasher/wmbus/stick"
	"github.com/bemasher/wmbus/telegram"
)

// An Event is produced by Handle for every frame that changed something.
type Event interface {
	event()
}

// DeviceRegistered is emitted exactly once per new device.
type DeviceRegistered struct {
	Record *registry.Record
}

// MessageProcessed carries a telegram annotated with its readings. Err is
// set when the meter decoder failed for some or all of the values.
type MessageProcessed struct {
	Record   *registry.Record
	Telegram *telegram.Telegram
	Err      error
}

// Management is a decoded device management response.
type Management struct {
	Response devmgmt.Response
}

// Command is a frame the host must write back to the stick.
type Command struct {
	Frame  []byte
	Reason string
}

func (DeviceRegistered) event() {}
func (MessageProcessed) event() {}
func (Management) event()       {}
func (Command) event()          {}

// Host is the synchronous core of a receiver. It performs no I/O.
type Host struct {
	Registry *registry.Registry
	Metrics  *metrics.Metrics

	log logrus.FieldLogger

	mu     sync.Mutex
	config *devmgmt.Config
	info   *devmgmt.DeviceInfo
}

// New returns a host dispatching telegrams to reg. m may be nil.
func New(reg *registry.Registry, m *metrics.Metrics, log logrus.FieldLogger) *Host {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Host{Registry: reg, Metrics: m, log: log}
}

// Config returns the last configuration read from the stick.
func (h *Host) Config() (devmgmt.Config, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config == nil {
		return devmgmt.Config{}, false
	}
	return *h.config, true
}

// DeviceInfo returns the last device info read from the stick.
func (h *Host) DeviceInfo() (devmgmt.DeviceInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.info == nil {
		return devmgmt.DeviceInfo{}, false
	}
	return *h.info, true
}

// Handle decodes one frame and routes it by endpoint. Chunks not starting
// with the start of frame marker return stick.ErrNotFrame and should be
// ignored.
func (h *Host) Handle(chunk []byte) ([]Event, error) {
	if len(chunk) == 0 || chunk[0] != stick.StartOfFrame {
		return nil, stick.ErrNotFrame
	}

	f, err := stick.Decode(chunk)
	if err != nil {
		h.Metrics.Error("frame")
		return nil, err
	}

	log := h.log.WithFields(logrus.Fields{
		"endpoint": f.EndpointID,
		"msg_id":   f.MessageID,
	})
	log.Debugf("frame: %s", f)
	h.Metrics.Frame(f.EndpointID.String())

	switch f.EndpointID {
	case stick.DeviceManagement:
		return h.handleManagement(f, log)
	case stick.RadioLink:
		return h.handleRadio(f, log)
	case stick.RadioLinkTest, stick.HardwareTest:
		log.Warn("endpoint not implemented, ignoring frame")
		return nil, nil
	}

	h.Metrics.Error("endpoint")
	log.Warn("unknown endpoint")
	return nil, errors.Wrapf(stick.ErrUnknownEndpoint, "host: endpoint 0x%X", uint8(f.EndpointID))
}

func (h *Host) handleManagement(f stick.Frame, log logrus.FieldLogger) ([]Event, error) {
	rsp, err := devmgmt.Decode(f)
	if err != nil {
		h.Metrics.Error("devmgmt")
		log.WithError(err).Warn("failed to decode device management message")
		return nil, err
	}

	switch rsp := rsp.(type) {
	case devmgmt.Config:
		h.mu.Lock()
		h.config = &rsp
		h.mu.Unlock()
		log.Infof("configuration: %s", rsp)
	case devmgmt.DeviceInfo:
		h.mu.Lock()
		h.info = &rsp
		h.mu.Unlock()
		log.Infof("device info: %s", rsp)
	case devmgmt.AESDecryptionError:
		log.Errorf("stick failed to decrypt telegram from %02X", rsp.Header)
	default:
		log.Debugf("response: %+v", rsp)
	}

	events := []Event{Management{Response: rsp}}
	if fu, ok := rsp.(devmgmt.FollowUp); ok {
		events = append(events, Command{Frame: fu.FollowUp(), Reason: "reload configuration"})
	}

	return events, nil
}

func (h *Host) handleRadio(f stick.Frame, log logrus.FieldLogger) ([]Event, error) {
	t, err := telegram.Decode(f)
	if err != nil {
		h.Metrics.Error("telegram")
		log.WithError(err).Warn("dropping radio message")
		return nil, err
	}

	log = log.WithField("device", t.ID())
	log.Debugf("telegram: manufacturer %s serial %02X version 0x%02X type 0x%02X",
		t.Manufacturer(), t.SerialNumber(), t.Version, t.DeviceType,
	)

	res, err := h.Registry.Dispatch(t)
	if res.Record == nil {
		h.Metrics.Error("registry")
		log.WithError(err).Warn("dropping telegram from unsupported device")
		return nil, err
	}

	var events []Event
	if res.Registered {
		h.Metrics.SetDevices(h.Registry.Len())
		events = append(events, DeviceRegistered{Record: res.Record})
	}

	if err != nil {
		h.Metrics.Error("meter")
		log.WithError(err).Error("failed to decode telegram")
	}

	h.Metrics.Telegram(t.Manufacturer())
	for _, r := range res.Readings {
		h.Metrics.Reading(r.Kind.String(), r.Unit)
	}

	events = append(events, MessageProcessed{Record: res.Record, Telegram: t, Err: err})

	return events, nil
}
