/*
WMBUS is a receiver for wireless M-Bus meters using an iM871A compatible radio stick.

Command-line Flags:

	-port=/dev/ttyUSB0

Sets the serial port of the radio stick. Defaults to /dev/ttyUSB0.

	-baud=57600

Sets the serial baud rate. Defaults to 57600.

	-duration=0

Sets time to receive for, 0 for infinite. Exiting after an expired duration
will log the total runtime. Defaults to infinite.

	-filterid=

Sets a comma-separated list of hex device ids to filter by. Any received
messages not matching one of the given ids will be silently ignored. Defaults
to no filtering.

	-filtertype=

Sets a comma-separated list of decoders to filter by: WeptechOMSv1,
WeptechOMSv2, EnergyCam and MockDevice. Matching is case-insensitive.

	-format="plain"

Sets the output format: plain, csv, json, xml or yaml. Defaults to plain.

Plain text is formatted using the following format string:

	{Time:%s %s:{ID:%s Manufacturer:%s Serial:%s AccessNumber:%d Status:0x%02X Values:%s}}

For json and xml output each line is an element, there is no root node. Yaml
output separates messages with a document marker. Log messages have the
following structure:

	type LogMessage struct {
		Time         time.Time
		ID           string
		Index        int
		Kind         meter.Kind
		Manufacturer string
		Serial       string
		Version      uint8
		DeviceType   uint8
		AccessNumber uint8
		Status       uint8
		Values       []telegram.Reading
		Error        string
	}

	-unique=false

Suppress messages whose data matches the previous message from the same
device. The access number is not compared.

	-single=false

Exit after the first message. With -filterid, wait for exactly one message
from each listed device.

	-linkmode=

Configure the stick's radio link mode on start, ex. T1 or S1-m.

	-persistent=false

Store configuration changes made on start in non-volatile memory.

	-rssi=false, -timestamp=false

Ask the stick to attach RSSI and timestamp trailers to received frames.

	-aeskey=deviceid:hexkey

Load a 16 byte AES key into the stick's key table when the device first
registers. May be repeated or given as a comma-separated list. Decryption
itself is performed by the stick.

	-metrics=

Serve prometheus metrics on the given address under /metrics.

	-loglevel=info, -logformat=text

Sets the log level and log format (text or json). Logs are written to
stderr, decoded messages to stdout.

Every flag may also be set by an environment variable named WMBUS_ followed
by the upper cased flag name, ex. WMBUS_PORT=/dev/ttyACM0.
*/
package main
