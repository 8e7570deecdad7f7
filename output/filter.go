package output

import (
	"bytes"
	"sort"
	"strings"
)

type FilterChain []MessageFilter

func (fc *FilterChain) Add(filter MessageFilter) {
	*fc = append(*fc, filter)
}

func (fc FilterChain) Match(msg LogMessage) bool {
	if len(fc) == 0 {
		return true
	}

	for _, filter := range fc {
		if !filter.Filter(msg) {
			return false
		}
	}

	return true
}

type MessageFilter interface {
	Filter(LogMessage) bool
}

// StringMap is a set of lower cased strings parsed from a comma separated
// flag value.
type StringMap map[string]bool

func (m StringMap) String() string {
	var values []string
	for k := range m {
		values = append(values, k)
	}
	sort.Strings(values)
	return strings.Join(values, ",")
}

func (m StringMap) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			m[v] = true
		}
	}
	return nil
}

// DeviceFilter passes messages from the listed device identities.
type DeviceFilter struct {
	StringMap
}

func (f DeviceFilter) Filter(msg LogMessage) bool {
	return f.StringMap[strings.ToLower(msg.ID)]
}

// KindFilter passes messages whose decoder kind is listed.
type KindFilter struct {
	StringMap
}

func (f KindFilter) Filter(msg LogMessage) bool {
	return f.StringMap[strings.ToLower(msg.Kind.String())]
}

// UniqueFilter drops a message if its device sent the same data last time.
// The comparison starts at the status byte, so a changing access number
// alone doesn't make a message unique.
type UniqueFilter map[string][]byte

func NewUniqueFilter() UniqueFilter {
	return make(UniqueFilter)
}

func (uf UniqueFilter) Filter(msg LogMessage) bool {
	var data []byte
	if t := msg.Telegram(); t != nil && len(t.Raw) > 12 {
		data = t.Raw[12:]
	}

	if val, ok := uf[msg.ID]; ok && bytes.Equal(val, data) {
		return false
	}

	uf[msg.ID] = make([]byte, len(data))
	copy(uf[msg.ID], data)
	return true
}
