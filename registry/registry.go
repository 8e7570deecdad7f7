// Package registry maps device identities to their meter decoders.
package registry

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/wmbus/meter"
	"github.com/bemasher/wmbus/telegram"
)

// Record is a registered device.
type Record struct {
	Identity     [8]byte
	Index        int
	RegisteredAt time.Time
	Decoder      meter.Decoder
}

// ID is the hex encoded identity.
func (r *Record) ID() string {
	return hex.EncodeToString(r.Identity[:])
}

func (r *Record) Kind() meter.Kind {
	return r.Decoder.Kind()
}

func (r *Record) String() string {
	return fmt.Sprintf("{ID:%s Index:%d Kind:%s}", r.ID(), r.Index, r.Kind())
}

// KeyRequest asks the host to load a decryption key into the stick's key
// table slot for this device.
type KeyRequest struct {
	Index    int
	DeviceID string
	Key      []byte
}

func (r *Record) KeyRequest(key []byte) KeyRequest {
	return KeyRequest{Index: r.Index, DeviceID: r.ID(), Key: key}
}

// Result of dispatching one telegram.
type Result struct {
	Record     *Record
	Registered bool
	Readings   []telegram.Reading
}

// Registry owns every Record. Methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	devices map[[8]byte]*Record
	order   []*Record

	cfg meter.Config
	log logrus.FieldLogger
}

func New(cfg meter.Config) *Registry {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Registry{
		devices: make(map[[8]byte]*Record),
		cfg:     cfg,
		log:     log,
	}
}

// Resolve returns the record for identity, creating it on first sight. The
// boolean reports whether a record was created.
func (reg *Registry) Resolve(identity [8]byte, manufacturer [2]byte, version, deviceType byte) (*Record, bool, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.resolve(identity, manufacturer, version, deviceType)
}

func (reg *Registry) resolve(identity [8]byte, manufacturer [2]byte, version, deviceType byte) (*Record, bool, error) {
	if rec, ok := reg.devices[identity]; ok {
		return rec, false, nil
	}

	dec, err := meter.New(manufacturer, version, deviceType, reg.cfg)
	if err != nil {
		return nil, false, errors.Wrapf(err, "registry: device %x", identity[:])
	}

	rec := &Record{
		Identity:     identity,
		Index:        len(reg.devices),
		RegisteredAt: reg.cfg.Clock(),
		Decoder:      dec,
	}
	reg.devices[identity] = rec
	reg.order = append(reg.order, rec)

	reg.log.WithFields(logrus.Fields{
		"device": rec.ID(),
		"index":  rec.Index,
		"kind":   rec.Kind(),
	}).Info("registered device")

	return rec, true, nil
}

// Dispatch resolves the telegram's device and hands it to the device's
// decoder. Readings are appended to t. A decode error is returned together
// with the record and any readings that were produced.
func (reg *Registry) Dispatch(t *telegram.Telegram) (Result, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rec, created, err := reg.resolve(t.DeviceIdentity, t.ManufacturerID, t.Version, t.DeviceType)
	if err != nil {
		return Result{}, err
	}

	res := Result{Record: rec, Registered: created}

	readings, err := rec.Decoder.Decode(t)
	start := len(t.Values)
	now := reg.cfg.Clock()
	for _, r := range readings {
		t.AddValue(r, now)
	}
	res.Readings = t.Values[start:]

	if err != nil {
		return res, errors.Wrapf(err, "registry: device %s", rec.ID())
	}
	return res, nil
}

// Lookup returns the record for a hex encoded identity.
func (reg *Registry) Lookup(id string) (*Record, bool) {
	b, err := hex.DecodeString(id)
	if err != nil || len(b) != 8 {
		return nil, false
	}

	var identity [8]byte
	copy(identity[:], b)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	rec, ok := reg.devices[identity]
	return rec, ok
}

// Devices returns all records in registration order.
func (reg *Registry) Devices() []*Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	devices := make([]*Record, len(reg.order))
	copy(devices, reg.order)
	return devices
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.devices)
}
