package telegram

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/wmbus/stick"
)

// radioFrame wraps a telegram payload (L-field first) into a decoded frame.
func radioFrame(t *testing.T, payload []byte) stick.Frame {
	t.Helper()
	buf := append([]byte{stick.StartOfFrame, byte(stick.RadioLink), WMBusMsgInd}, payload...)
	f, err := stick.Decode(buf)
	require.NoError(t, err)
	return f
}

func TestDecodeFields(t *testing.T) {
	payload := []byte{0x12, 0x44, 0xFF, 0xFF, 0x12, 0xAA, 0xAA, 0xBB, 0x12, 0x13, 0x14, 0x15, 0x12, 0x13, 0x14, 0x15}

	// Declared length (0x12) exceeds what we pass in, so build the frame by hand.
	f := stick.Frame{EndpointID: stick.RadioLink, MessageID: WMBusMsgInd, Payload: payload}

	tg, err := Decode(f)
	require.NoError(t, err)

	assert.Equal(t, byte(18), tg.Length)
	assert.Equal(t, byte(0x44), tg.Command)
	assert.Equal(t, [2]byte{0xFF, 0xFF}, tg.ManufacturerID)
	assert.Equal(t, "ffff12aaaabb1213", tg.ID())
	assert.Equal(t, byte(0x12), tg.Version)
	assert.Equal(t, byte(0x13), tg.DeviceType)
	assert.Equal(t, byte(0x14), tg.ControlField)
	assert.Equal(t, byte(21), tg.AccessNumber)
	assert.Equal(t, byte(18), tg.Status)
	assert.Equal(t, byte(0x13), tg.ConfigurationWord)
	assert.Equal(t, payload, tg.Raw)
	assert.Empty(t, tg.Values)

	// Display serial overlaps the manufacturer id.
	assert.Equal(t, []byte{0xFF, 0x12, 0xAA, 0xAA, 0xBB}, tg.SerialNumber())
}

func TestDecodeFromWire(t *testing.T) {
	payload := []byte{0x0D, 0x44, 0xB0, 0x5C, 0x74, 0x72, 0x00, 0x00, 0x02, 0x1B, 0x7A, 0xBF, 0x00, 0x00}
	tg, err := Decode(radioFrame(t, payload))
	require.NoError(t, err)

	assert.Equal(t, "b05c74720000021b", tg.ID())
	assert.Equal(t, "WEP", tg.Manufacturer())
	assert.Equal(t, byte(0x7A), tg.ControlField)
}

func TestDecodeRejects(t *testing.T) {
	payload := []byte{0x0D, 0x46, 0xB0, 0x5C, 0x74, 0x72, 0x00, 0x00, 0x02, 0x1B, 0x7A, 0xBF, 0x00, 0x00}
	_, err := Decode(radioFrame(t, payload))
	assert.True(t, errors.Is(err, ErrUnrecognizedCommand), "%+v", err)

	_, err = Decode(radioFrame(t, []byte{0x03, 0x44, 0xB0, 0x5C}))
	assert.True(t, errors.Is(err, stick.ErrFrameTooShort), "%+v", err)

	// A short message is still classified by its C-field.
	_, err = Decode(radioFrame(t, []byte{0x03, 0x46, 0xB0, 0x5C}))
	assert.True(t, errors.Is(err, ErrUnrecognizedCommand), "%+v", err)

	_, err = Decode(radioFrame(t, []byte{0x00}))
	assert.True(t, errors.Is(err, stick.ErrFrameTooShort), "%+v", err)
}

func TestManufacturerCode(t *testing.T) {
	testCases := []struct {
		id   [2]byte
		code string
	}{
		{[2]byte{0xB0, 0x5C}, "WEP"},
		{[2]byte{0xC4, 0x18}, "FFD"},
		{[2]byte{0xB3, 0x25}, "IMS"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.code, ManufacturerCode(tc.id))
	}
}

func TestAddValue(t *testing.T) {
	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	ts := now.Add(-time.Hour)

	var tg Telegram
	tg.AddValue(Reading{Value: 1.5, Unit: UnitCelsius, Kind: Temperature}, now)
	tg.AddValue(Reading{Value: 2, Timestamp: ts}, now)

	require.Len(t, tg.Values, 2)
	assert.Equal(t, now, tg.Values[0].Timestamp)
	assert.Equal(t, ts, tg.Values[1].Timestamp)
	assert.Equal(t, UnitUnset, tg.Values[1].Unit)
	assert.Equal(t, Unknown, tg.Values[1].Kind)
	assert.Equal(t, []string{"1.5", "°C", "temperature"}, tg.Values[0].Record())
}
