// Package devmgmt decodes responses from, and builds requests for, the device
// management endpoint of the radio stick.
package devmgmt

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bemasher/wmbus/stick"
)

// Device management message ids.
const (
	PingReq          = 0x01
	PingRsp          = 0x02
	SetConfigReq     = 0x03
	SetConfigRsp     = 0x04
	GetConfigReq     = 0x05
	GetConfigRsp     = 0x06
	ResetReq         = 0x07
	ResetRsp         = 0x08
	FactoryResetReq  = 0x09
	FactoryResetRsp  = 0x0A
	GetDeviceInfoReq = 0x0F
	GetDeviceInfoRsp = 0x10
	EnableAESKeyReq  = 0x23
	EnableAESKeyRsp  = 0x24
	SetAESKeyReq     = 0x25
	SetAESKeyRsp     = 0x26
	AESDecryptionInd = 0x27
)

var (
	ErrUnknownMessage = errors.New("devmgmt: unknown message")
	ErrUnknownCode    = errors.New("devmgmt: unknown code")
)

// A Response is one decoded device management message.
type Response interface {
	MsgID() byte
}

// A FollowUp response requires the host to send another request.
type FollowUp interface {
	FollowUp() []byte
}

type PingAck struct{}

func (PingAck) MsgID() byte    { return PingRsp }
func (PingAck) String() string { return "{Ping}" }

type ResetAck struct{}

func (ResetAck) MsgID() byte    { return ResetRsp }
func (ResetAck) String() string { return "{Reset}" }

type FactoryResetAck struct{ Success bool }

func (FactoryResetAck) MsgID() byte { return FactoryResetRsp }

type EnableAESAck struct{ Success bool }

func (EnableAESAck) MsgID() byte { return EnableAESKeyRsp }

type SetAESKeyAck struct{ Success bool }

func (SetAESKeyAck) MsgID() byte { return SetAESKeyRsp }

// SetConfigAck acknowledges a configuration change. The configuration is
// re-read afterwards.
type SetConfigAck struct{}

func (SetConfigAck) MsgID() byte { return SetConfigRsp }

func (SetConfigAck) FollowUp() []byte { return GetConfig() }

// AESDecryptionError is sent unsolicited when the stick fails to decrypt a
// telegram. Header is the offending device header.
type AESDecryptionError struct {
	Header []byte
}

func (AESDecryptionError) MsgID() byte { return AESDecryptionInd }

func (e AESDecryptionError) String() string {
	return fmt.Sprintf("{AESDecryptionError Header:%02X}", e.Header)
}

type DeviceInfo struct {
	ModuleType byte
	DeviceMode byte
	Firmware   byte
	HCIVersion byte
	DeviceID   string
}

func (DeviceInfo) MsgID() byte { return GetDeviceInfoRsp }

func (info DeviceInfo) String() string {
	return fmt.Sprintf("{ModuleType:0x%02X DeviceMode:0x%02X Firmware:0x%02X HCIVersion:0x%02X DeviceID:%s}",
		info.ModuleType, info.DeviceMode, info.Firmware, info.HCIVersion, info.DeviceID,
	)
}

// Decode interprets a frame from the device management endpoint.
func Decode(f stick.Frame) (Response, error) {
	if f.EndpointID != stick.DeviceManagement {
		return nil, errors.Wrapf(stick.ErrUnknownEndpoint, "devmgmt: frame for %s", f.EndpointID)
	}

	switch f.MessageID {
	case PingRsp:
		return PingAck{}, nil
	case ResetRsp:
		return ResetAck{}, nil
	case SetConfigRsp:
		return SetConfigAck{}, nil
	case AESDecryptionInd:
		return AESDecryptionError{Header: f.Data()}, nil
	case FactoryResetRsp, EnableAESKeyRsp, SetAESKeyRsp:
		ok, err := status(f)
		if err != nil {
			return nil, err
		}
		switch f.MessageID {
		case FactoryResetRsp:
			return FactoryResetAck{ok}, nil
		case EnableAESKeyRsp:
			return EnableAESAck{ok}, nil
		}
		return SetAESKeyAck{ok}, nil
	case GetDeviceInfoRsp:
		info, err := decodeDeviceInfo(f.Payload)
		if err != nil {
			return nil, err
		}
		return info, nil
	case GetConfigRsp:
		cfg, err := DecodeConfig(f.Payload)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}

	return nil, errors.Wrapf(ErrUnknownMessage, "message id 0x%02X", f.MessageID)
}

// status reads the success flag following the length byte.
func status(f stick.Frame) (bool, error) {
	if len(f.Payload) < 2 {
		return false, errors.Wrapf(stick.ErrFrameTooShort, "devmgmt: message 0x%02X has no status", f.MessageID)
	}
	return f.Payload[1] != 0, nil
}

func decodeDeviceInfo(payload []byte) (info DeviceInfo, err error) {
	if len(payload) < 9 {
		return info, errors.Wrapf(stick.ErrFrameTooShort, "devmgmt: device info has %d bytes", len(payload))
	}

	info.ModuleType = payload[1]
	info.DeviceMode = payload[2]
	info.Firmware = payload[3]
	info.HCIVersion = payload[4]
	info.DeviceID = hex.EncodeToString(payload[5:9])

	return info, nil
}
