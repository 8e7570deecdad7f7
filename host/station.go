package host

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/wmbus/devmgmt"
	"github.com/bemasher/wmbus/registry"
	"github.com/bemasher/wmbus/stick"
)

// Station drives a radio stick over a byte stream transport.
type Station struct {
	*Host

	rw  io.ReadWriter
	wmu sync.Mutex
}

func NewStation(rw io.ReadWriter, h *Host) *Station {
	return &Station{Host: h, rw: rw}
}

// Send writes one frame to the stick.
func (s *Station) Send(frame []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.log.Debugf("send: %02X", frame)
	if _, err := s.rw.Write(frame); err != nil {
		return errors.Wrap(err, "station: write")
	}
	s.Metrics.Command()
	return nil
}

func (s *Station) Ping() error          { return s.Send(devmgmt.Ping()) }
func (s *Station) Reset() error         { return s.Send(devmgmt.Reset()) }
func (s *Station) RequestInfo() error   { return s.Send(devmgmt.GetDeviceInfo()) }
func (s *Station) RequestConfig() error { return s.Send(devmgmt.GetConfig()) }

func (s *Station) FactoryReset(reboot bool) error {
	return s.Send(devmgmt.FactoryReset(reboot))
}

func (s *Station) SetLinkMode(mode devmgmt.LinkMode, persistent bool) error {
	buf, err := devmgmt.SetLinkMode(mode, persistent)
	if err != nil {
		return err
	}
	return s.Send(buf)
}

func (s *Station) SetAutoRSSI(enable, persistent bool) error {
	return s.Send(devmgmt.SetAutoRSSI(enable, persistent))
}

func (s *Station) SetAutoTimestamp(enable, persistent bool) error {
	return s.Send(devmgmt.SetAutoTimestamp(enable, persistent))
}

func (s *Station) EnableAES(enable, persistent bool) error {
	return s.Send(devmgmt.EnableAES(enable, persistent))
}

// ProvisionKey loads a device's decryption key into the stick.
func (s *Station) ProvisionKey(req registry.KeyRequest) error {
	buf, err := devmgmt.SetAESKey(req.Index, req.DeviceID, req.Key)
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"device": req.DeviceID,
		"index":  req.Index,
	}).Info("provisioning AES key")

	return s.Send(buf)
}

// Watch reads frames from the stick until ctx is done or the transport
// fails, sending every event to events. It requests the stick
// configuration first. Command events are written back to the stick before
// being forwarded.
//
// The reader goroutine stops once Watch returns, except that a blocked read
// is only interrupted by closing the transport.
func (s *Station) Watch(ctx context.Context, events chan<- Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.RequestConfig(); err != nil {
		return err
	}

	frames := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(s.rw)
		scanner.Split(stick.ScanFrames)

		for scanner.Scan() {
			frame := make([]byte, len(scanner.Bytes()))
			copy(frame, scanner.Bytes())

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}

		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return errors.Wrap(err, "station: read")
		case frame := <-frames:
			evts, err := s.Handle(frame)
			if err != nil {
				s.log.WithError(err).Debug("frame dropped")
				continue
			}

			for _, evt := range evts {
				if cmd, ok := evt.(Command); ok {
					if err := s.Send(cmd.Frame); err != nil {
						return err
					}
				}

				select {
				case events <- evt:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
