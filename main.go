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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/wmbus/host"
	"github.com/bemasher/wmbus/meter"
	"github.com/bemasher/wmbus/metrics"
	"github.com/bemasher/wmbus/output"
	"github.com/bemasher/wmbus/registry"
)

type Receiver struct {
	*host.Station

	port io.ReadWriteCloser
	fc   output.FilterChain
	keys KeyMap
	log  logrus.FieldLogger
}

// NewReceiver opens the stick's serial port and builds the processing
// chain.
func NewReceiver() (*Receiver, error) {
	rcvr := &Receiver{
		keys: aesKeys,
		log:  logrus.WithField("port", *port),
	}

	options := serial.OpenOptions{
		PortName:        *port,
		BaudRate:        *baud,
		DataBits:        8,
		ParityMode:      serial.PARITY_NONE,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	var err error
	rcvr.port, err = serial.Open(options)
	if err != nil {
		return nil, errors.Wrap(err, "open serial port")
	}

	var m *metrics.Metrics
	if *metricsAddr != "" {
		promReg := metrics.NewRegistry()
		m = metrics.New(promReg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(promReg))
		go func() {
			rcvr.log.WithField("addr", *metricsAddr).Info("serving metrics")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				rcvr.log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	reg := registry.New(meter.Config{Clock: time.Now, Log: logrus.StandardLogger()})
	rcvr.Station = host.NewStation(rcvr.port, host.New(reg, m, logrus.StandardLogger()))

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "unique":
			rcvr.fc.Add(output.NewUniqueFilter())
		case "filterid":
			rcvr.fc.Add(deviceID)
		case "filtertype":
			rcvr.fc.Add(deviceKind)
		}
	})

	return rcvr, nil
}

// Configure applies the stick settings given on the command line.
func (rcvr *Receiver) Configure() (err error) {
	flag.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}

		switch f.Name {
		case "linkmode":
			rcvr.log.Infof("setting link mode %s", configMode)
			err = rcvr.SetLinkMode(configMode, *persistent)
		case "rssi":
			err = rcvr.SetAutoRSSI(*rssi, *persistent)
		case "timestamp":
			err = rcvr.SetAutoTimestamp(*timestamp, *persistent)
		}
	})
	if err != nil {
		return err
	}

	if len(rcvr.keys) > 0 {
		return rcvr.EnableAES(true, *persistent)
	}
	return nil
}

func (rcvr *Receiver) Close() {
	rcvr.port.Close()
}

func (rcvr *Receiver) Run() error {
	// Setup signal channel for interruption.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Setup time limit.
	if *timeLimit != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeLimit)
		defer cancel()
	}

	start := time.Now()

	// Stops Watch in single mode, and on any early return while it is
	// blocked handing us an event.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan host.Event)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- rcvr.Watch(ctx, events)
	}()

	if err := rcvr.Configure(); err != nil {
		return err
	}

	for {
		select {
		case err := <-watchErr:
			if errors.Is(err, context.DeadlineExceeded) {
				rcvr.log.Info("time limit reached: ", time.Since(start))
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case evt := <-events:
			done, err := rcvr.handle(evt)
			if err != nil {
				return err
			}
			if done {
				cancel()
			}
		}
	}
}

func (rcvr *Receiver) handle(evt host.Event) (done bool, err error) {
	switch evt := evt.(type) {
	case host.DeviceRegistered:
		key, ok := rcvr.keys[evt.Record.ID()]
		if !ok {
			return false, nil
		}
		if err := rcvr.ProvisionKey(evt.Record.KeyRequest(key)); err != nil {
			rcvr.log.WithError(err).WithField("device", evt.Record.ID()).Error("failed to provision key")
		}
	case host.MessageProcessed:
		msg := output.NewLogMessage(time.Now(), evt.Record, evt.Telegram, evt.Err)

		// If the filterchain rejects the message, skip it.
		if !rcvr.fc.Match(msg) {
			return false, nil
		}

		if err := encoder.Encode(msg); err != nil {
			return false, errors.Wrap(err, "encoding message")
		}

		if *single {
			if len(deviceID.StringMap) == 0 {
				return true, nil
			}
			delete(deviceID.StringMap, msg.ID)
			return len(deviceID.StringMap) == 0, nil
		}
	}

	return false, nil
}

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

func main() {
	RegisterFlags()
	EnvOverride()
	flag.Parse()

	if *version {
		fmt.Println("Build Tag: ", buildTag)
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:    ", commitHash)
		os.Exit(0)
	}

	if err := HandleFlags(); err != nil {
		logrus.Fatal(err)
	}

	rcvr, err := NewReceiver()
	if err != nil {
		logrus.Fatal(err)
	}
	defer rcvr.Close()

	if err := rcvr.Run(); err != nil {
		logrus.Fatal(err)
	}
}
