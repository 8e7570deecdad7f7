package meter

import (
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/wmbus/stick"
	"github.com/bemasher/wmbus/telegram"
)

var testTime = time.Date(2020, 5, 4, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return Config{
		Clock: func() time.Time { return testTime },
		Log:   log,
	}
}

// decodeTelegram runs payload through the frame and telegram decoders.
func decodeTelegram(t *testing.T, payload []byte) *telegram.Telegram {
	t.Helper()
	buf := append([]byte{stick.StartOfFrame, byte(stick.RadioLink), telegram.WMBusMsgInd}, payload...)
	f, err := stick.Decode(buf)
	require.NoError(t, err)
	tg, err := telegram.Decode(f)
	require.NoError(t, err)
	return tg
}

func TestNew(t *testing.T) {
	testCases := []struct {
		name         string
		manufacturer [2]byte
		version      byte
		kind         Kind
		err          error
	}{
		{"weptech v1", WeptechID, 1, WeptechOMSv1, nil},
		{"weptech v2", WeptechID, 2, WeptechOMSv2, nil},
		{"weptech v3", WeptechID, 3, 0, ErrUnsupportedVersion},
		{"energycam", FastForward, 1, EnergyCam, nil},
		{"energycam v2", FastForward, 2, 0, ErrUnsupportedVersion},
		{"mock", MockID, 0x12, Mock, nil},
		{"imst", IMST, 1, 0, ErrUnknownManufacturer},
		{"unknown", [2]byte{0x01, 0x02}, 1, 0, ErrUnknownManufacturer},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dec, err := New(tc.manufacturer, tc.version, 0x07, testConfig())
			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "%+v", err)
				assert.Nil(t, dec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.kind, dec.Kind())
		})
	}
}

func TestNewEnergyCamMeterType(t *testing.T) {
	dec, err := New(FastForward, 1, 0x07, testConfig())
	require.NoError(t, err)

	cam, ok := dec.(*EnergyCamDecoder)
	require.True(t, ok)
	assert.Equal(t, byte(0x07), cam.MeterType)
	assert.Equal(t, "Water", cam.Medium())
	assert.Equal(t, "MeterType(0x09)", MeterTypeName(0x09))
}

func TestNewDefaults(t *testing.T) {
	dec, err := New(MockID, 0, 0, Config{})
	require.NoError(t, err)

	m := dec.(*MockDecoder)
	assert.NotNil(t, m.cfg.Clock)
	assert.NotNil(t, m.cfg.Log)
}

func TestMock(t *testing.T) {
	payload := []byte{0x0F, 0x44, 0xFF, 0xFF, 0x12, 0xAA, 0xAA, 0xBB, 0x12, 0x13, 0x14, 0x15, 0x12, 0x13, 0x14, 0x15}
	tg := decodeTelegram(t, payload)

	dec, err := New(MockID, tg.Version, tg.DeviceType, testConfig())
	require.NoError(t, err)

	readings, err := dec.Decode(tg)
	require.NoError(t, err)
	assert.Empty(t, readings)

	m := dec.(*MockDecoder)
	assert.Same(t, tg, m.Last())
	assert.Equal(t, 1, dec.State().Updates)
	assert.Equal(t, testTime, dec.State().UpdatedAt)
}
