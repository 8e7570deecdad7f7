package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringMap(t *testing.T) {
	m := make(StringMap)
	require.NoError(t, m.Set("B05C74720000011B, ffff12aaaabb1213,,"))

	assert.Equal(t, "b05c74720000011b,ffff12aaaabb1213", m.String())
}

func TestFilterChain(t *testing.T) {
	reg := newTestRegistry()
	msg := process(t, reg, weptechPayload(0x01))

	var fc FilterChain
	assert.True(t, fc.Match(msg))

	ids := DeviceFilter{make(StringMap)}
	require.NoError(t, ids.Set("B05C74720000011B"))
	fc.Add(ids)
	assert.True(t, fc.Match(msg))

	kinds := KindFilter{make(StringMap)}
	require.NoError(t, kinds.Set("energycam"))
	fc.Add(kinds)
	assert.False(t, fc.Match(msg))

	require.NoError(t, kinds.Set("weptechomsv1"))
	assert.True(t, fc.Match(msg))

	other := DeviceFilter{make(StringMap)}
	require.NoError(t, other.Set("ffff12aaaabb1213"))
	assert.False(t, other.Filter(msg))
}

func TestUniqueFilter(t *testing.T) {
	reg := newTestRegistry()
	uf := NewUniqueFilter()

	assert.True(t, uf.Filter(process(t, reg, weptechPayload(0x01))))

	// Only the access number changed.
	assert.False(t, uf.Filter(process(t, reg, weptechPayload(0x02))))

	changed := weptechPayload(0x03)
	changed[19] = 0x40
	assert.True(t, uf.Filter(process(t, reg, changed)))
	assert.False(t, uf.Filter(process(t, reg, changed)))
}
