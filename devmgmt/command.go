package devmgmt

import (
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/bemasher/wmbus/stick"
)

const (
	AESKeyLength   = 16
	DeviceIDLength = 8
)

var ErrInvalidArgument = errors.New("devmgmt: invalid argument")

// request encodes a device management frame. Payloads built here never
// exceed the frame limit, so the encoder can't fail.
func request(msgID byte, payload ...byte) []byte {
	buf, err := stick.Encode(stick.DeviceManagement, msgID, payload)
	if err != nil {
		panic(err)
	}
	return buf
}

func flag(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}

func Ping() []byte          { return request(PingReq) }
func Reset() []byte         { return request(ResetReq) }
func GetDeviceInfo() []byte { return request(GetDeviceInfoReq) }
func GetConfig() []byte     { return request(GetConfigReq) }

// FactoryReset restores the stick defaults, also removing stored AES keys.
func FactoryReset(reboot bool) []byte {
	return request(FactoryResetReq, flag(reboot))
}

// SetConfig sends a configuration body as produced by EncodeConfig. If
// persistent is set the stick stores it in non-volatile memory.
func SetConfig(body []byte, persistent bool) ([]byte, error) {
	if len(body)+1 > 0xFF {
		return nil, errors.Wrapf(ErrInvalidArgument, "config body has %d bytes", len(body))
	}
	return request(SetConfigReq, append([]byte{flag(persistent)}, body...)...), nil
}

// SetLinkMode changes the radio link mode.
func SetLinkMode(mode LinkMode, persistent bool) ([]byte, error) {
	if _, ok := linkModes[mode]; !ok {
		return nil, errors.Wrapf(ErrUnknownCode, "link mode %d", byte(mode))
	}
	return SetConfig(EncodeConfig(Config{LinkMode: &mode}), persistent)
}

// SetAutoRSSI toggles the RSSI trailer on received radio frames.
func SetAutoRSSI(enable bool, persistent bool) []byte {
	buf, _ := SetConfig(EncodeConfig(Config{AutoRSSI: &enable}), persistent)
	return buf
}

// SetAutoTimestamp toggles the timestamp trailer on received radio frames.
func SetAutoTimestamp(enable bool, persistent bool) []byte {
	buf, _ := SetConfig(EncodeConfig(Config{AutoTimestamp: &enable}), persistent)
	return buf
}

// EnableAES turns decryption with the stored key table on or off.
func EnableAES(enable bool, persistent bool) []byte {
	return request(EnableAESKeyReq, flag(persistent), flag(enable))
}

// SetAESKey stores a decryption key for a device at the given key table
// slot. deviceID is the hex encoded 8 byte device identity.
func SetAESKey(index int, deviceID string, key []byte) ([]byte, error) {
	if index < 0 || index > 0xFF {
		return nil, errors.Wrapf(ErrInvalidArgument, "key table index %d", index)
	}

	id, err := hex.DecodeString(deviceID)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "device id %q: %s", deviceID, err)
	}
	if len(id) != DeviceIDLength {
		return nil, errors.Wrapf(ErrInvalidArgument, "device id has %d bytes, want %d", len(id), DeviceIDLength)
	}
	if len(key) != AESKeyLength {
		return nil, errors.Wrapf(ErrInvalidArgument, "key has %d bytes, want %d", len(key), AESKeyLength)
	}

	payload := make([]byte, 0, 1+DeviceIDLength+AESKeyLength)
	payload = append(payload, byte(index))
	payload = append(payload, id...)
	payload = append(payload, key...)

	return request(SetAESKeyReq, payload...), nil
}
