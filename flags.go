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
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/wmbus/csv"
	"github.com/bemasher/wmbus/devmgmt"
	"github.com/bemasher/wmbus/output"
)

var port = flag.String("port", "/dev/ttyUSB0", "serial port of the radio stick")
var baud = flag.Uint("baud", 57600, "serial baud rate")

var timeLimit = flag.Duration("duration", 0, "time to run for, 0 for infinite, ex. 1h5m10s")
var deviceID output.DeviceFilter
var deviceKind output.KindFilter

var unique = flag.Bool("unique", false, "suppress duplicate messages from each device")

var encoder output.Encoder
var format = flag.String("format", "plain", "decoded message output format: plain, csv, json, xml or yaml")

var single = flag.Bool("single", false, "one shot execution, if used with -filterid, will wait for exactly one telegram from each device id")

var linkMode = flag.String("linkmode", "", "radio link mode to configure on start, ex. T1, S1-m, \"C1, Telegram Format A\"")
var persistent = flag.Bool("persistent", false, "store configuration changes in the stick's non-volatile memory")
var rssi = flag.Bool("rssi", false, "attach RSSI to received radio frames")
var timestamp = flag.Bool("timestamp", false, "attach the stick's timestamp to received radio frames")
var aesKeys KeyMap

var metricsAddr = flag.String("metrics", "", "serve prometheus metrics on this address, ex. :9100")

var logLevel = flag.String("loglevel", "info", "log level: debug, info, warn or error")
var logFormat = flag.String("logformat", "text", "log format: text or json")

var version = flag.Bool("version", false, "display build date and commit hash")

var configMode devmgmt.LinkMode

func RegisterFlags() {
	deviceID = output.DeviceFilter{StringMap: make(output.StringMap)}
	deviceKind = output.KindFilter{StringMap: make(output.StringMap)}
	aesKeys = make(KeyMap)

	flag.Var(deviceID, "filterid", "display only messages matching an id in a comma-separated list of hex device ids.")
	flag.Var(deviceKind, "filtertype", "display only messages matching a decoder in a comma-separated list: WeptechOMSv1, WeptechOMSv2, EnergyCam, MockDevice.")
	flag.Var(aesKeys, "aeskey", "provision a decryption key when a device registers, deviceid:hexkey, repeatable or comma-separated.")

	stickFlags := map[string]bool{
		"port":       true,
		"baud":       true,
		"linkmode":   true,
		"persistent": true,
		"rssi":       true,
		"timestamp":  true,
		"aeskey":     true,
	}

	printDefaults := func(validFlags map[string]bool, inclusion bool) {
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			if validFlags[f.Name] != inclusion {
				return
			}

			format := "  -%s=%s: %s\n"
			fmt.Fprintf(os.Stderr, format, f.Name, f.Value, f.Usage)
		})
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		printDefaults(stickFlags, false)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "stick specific:")
		printDefaults(stickFlags, true)
	}
}

func EnvOverride() {
	flag.VisitAll(func(f *flag.Flag) {
		envName := "WMBUS_" + strings.ToUpper(f.Name)
		flagValue := os.Getenv(envName)
		if flagValue != "" {
			log := logrus.WithFields(logrus.Fields{
				"env":  envName,
				"flag": f.Name,
			})
			if err := flag.Set(f.Name, flagValue); err != nil {
				log.WithError(err).Warnf("environment variable failed to override flag with %q", flagValue)
			} else {
				log.Infof("environment variable overrides flag with %q", flagValue)
			}
		}
	})
}

func HandleFlags() error {
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return errors.Wrap(err, "loglevel")
	}
	logrus.SetLevel(level)

	switch strings.ToLower(*logFormat) {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: output.TimeFormat})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.Errorf("invalid log format: %q", *logFormat)
	}

	if *linkMode != "" {
		if configMode, err = devmgmt.ParseLinkMode(*linkMode); err != nil {
			return err
		}
	}

	encoder, err = output.NewEncoder(*format, os.Stdout)
	if err != nil {
		return err
	}

	if enc, ok := encoder.(*csv.Encoder); ok {
		return enc.WriteHeader("time", "index", "kind", "id", "manufacturer", "version", "device_type", "access_number", "status", "value", "unit", "reading_kind")
	}

	return nil
}

// KeyMap holds AES keys by hex device id.
type KeyMap map[string][]byte

func (m KeyMap) String() string {
	var ids []string
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func (m KeyMap) Set(value string) error {
	for _, entry := range strings.Split(value, ",") {
		fields := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(fields) != 2 {
			return errors.Errorf("aeskey: expected deviceid:hexkey, got %q", entry)
		}

		id := strings.ToLower(fields[0])
		if b, err := hex.DecodeString(id); err != nil || len(b) != devmgmt.DeviceIDLength {
			return errors.Errorf("aeskey: invalid device id %q", fields[0])
		}

		key, err := hex.DecodeString(fields[1])
		if err != nil || len(key) != devmgmt.AESKeyLength {
			return errors.Errorf("aeskey: key for %s must be %d hex encoded bytes", id, devmgmt.AESKeyLength)
		}

		m[id] = key
	}

	return nil
}
