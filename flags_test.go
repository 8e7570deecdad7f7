package main

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyMap(t *testing.T) {
	m := make(KeyMap)

	require.NoError(t, m.Set("B05C74720000021B:000102030405060708090a0b0c0d0e0f"))
	require.NoError(t, m.Set("ffff12aaaabb1213:ffffffffffffffffffffffffffffffff"))

	assert.Equal(t, "b05c74720000021b,ffff12aaaabb1213", m.String())
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, m["b05c74720000021b"])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 16), m["ffff12aaaabb1213"])

	for _, bad := range []string{
		"b05c74720000021b",
		"b05c7472:000102030405060708090a0b0c0d0e0f",
		"b05c74720000021b:0001",
		"b05c74720000021b:zz0102030405060708090a0b0c0d0e0f",
	} {
		assert.Error(t, make(KeyMap).Set(bad), bad)
	}
}

func TestEnvOverride(t *testing.T) {
	prev := *format
	t.Cleanup(func() { flag.Set("format", prev) })

	t.Setenv("WMBUS_FORMAT", "json")
	EnvOverride()

	assert.Equal(t, "json", *format)
}
