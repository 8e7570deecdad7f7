package stick

import "bytes"

// ScanFrames is a bufio.SplitFunc that cuts a serial byte stream into whole
// frames. Bytes preceding a start marker are discarded. Each token is a
// complete frame suitable for Decode.
//
// A marker whose control byte names no endpoint, or sets the reserved flag,
// is skipped. So is a candidate still incomplete at the end of the stream,
// since its length byte was most likely noise.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.IndexByte(data, StartOfFrame)
	if start < 0 {
		// Nothing resembling a frame, drop everything we've seen.
		return len(data), nil, nil
	}

	if len(data[start:]) > 1 && !validControl(data[start+1]) {
		return start + 1, nil, nil
	}

	n, err := FrameLength(data[start:])
	if err != nil || len(data[start:]) < n {
		// Incomplete, wait for more unless the stream is done.
		if atEOF {
			return start + 1, nil, nil
		}
		return start, nil, nil
	}

	return start + n, data[start : start+n], nil
}

func validControl(control byte) bool {
	switch EndpointID(control & 0x0F) {
	case DeviceManagement, RadioLink, RadioLinkTest, HardwareTest:
	default:
		return false
	}
	return (control>>4)&0x1 == 0
}
