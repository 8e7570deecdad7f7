package host

import (
	"bytes"
	"context"
	"io"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/wmbus/devmgmt"
	"github.com/bemasher/wmbus/registry"
	"github.com/bemasher/wmbus/stick"
)

// transport replays canned bytes and records writes.
type transport struct {
	io.Reader

	mu      sync.Mutex
	written bytes.Buffer
}

func (tr *transport) Write(p []byte) (int, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.written.Write(p)
}

func (tr *transport) Written() []byte {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]byte(nil), tr.written.Bytes()...)
}

func TestWatch(t *testing.T) {
	var stream []byte
	stream = append(stream, 0x00, 0x13) // line noise
	stream = append(stream, encode(t, stick.DeviceManagement, devmgmt.GetConfigRsp, 0x02, 0x03, 0x00)...)
	stream = append(stream, mockTelegram(t)...)
	stream = append(stream, encode(t, stick.DeviceManagement, devmgmt.SetConfigRsp, 0x00)...)
	stream = append(stream, mockTelegram(t)...)

	tr := &transport{Reader: bytes.NewReader(stream)}
	s := NewStation(tr, newTestHost())

	events := make(chan Event, 16)
	err := s.Watch(context.Background(), events)
	assert.True(t, errors.Is(err, io.EOF), "%+v", err)
	close(events)

	var got []Event
	for evt := range events {
		got = append(got, evt)
	}

	require.Len(t, got, 6)
	assert.IsType(t, Management{}, got[0])
	assert.IsType(t, DeviceRegistered{}, got[1])
	assert.IsType(t, MessageProcessed{}, got[2])
	assert.IsType(t, Management{}, got[3])
	assert.IsType(t, Command{}, got[4])
	assert.IsType(t, MessageProcessed{}, got[5])

	// Initial configuration request, then the reload after set-config.
	want := append(devmgmt.GetConfig(), devmgmt.GetConfig()...)
	assert.Equal(t, want, tr.Written())
}

func TestWatchCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	tr := &transport{Reader: r}
	s := NewStation(tr, newTestHost())

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event)

	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, events)
	}()

	_, err := w.Write(mockTelegram(t))
	require.NoError(t, err)

	evt := <-events
	assert.IsType(t, DeviceRegistered{}, evt)

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
	assert.Equal(t, 1, s.Registry.Len())
}

// brokenPort accepts the first write only.
type brokenPort struct {
	io.Reader

	mu     sync.Mutex
	writes int
}

func (p *brokenPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writes++
	if p.writes > 1 {
		return 0, errors.New("port gone")
	}
	return len(b), nil
}

func TestWatchWriteFailure(t *testing.T) {
	var stream []byte
	stream = append(stream, encode(t, stick.DeviceManagement, devmgmt.SetConfigRsp, 0x00)...)
	stream = append(stream, mockTelegram(t)...)
	stream = append(stream, mockTelegram(t)...)

	before := runtime.NumGoroutine()

	s := NewStation(&brokenPort{Reader: bytes.NewReader(stream)}, newTestHost())
	err := s.Watch(context.Background(), make(chan Event, 16))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port gone")

	// The reader is left holding a telegram and must give up on it.
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond)
}

func TestStationCommands(t *testing.T) {
	tr := &transport{Reader: bytes.NewReader(nil)}
	s := NewStation(tr, newTestHost())

	mode, err := devmgmt.ParseLinkMode("s1-m")
	require.NoError(t, err)

	require.NoError(t, s.Ping())
	require.NoError(t, s.Reset())
	require.NoError(t, s.RequestInfo())
	require.NoError(t, s.FactoryReset(true))
	require.NoError(t, s.SetLinkMode(mode, false))
	require.NoError(t, s.SetAutoRSSI(true, false))
	require.NoError(t, s.SetAutoTimestamp(true, false))
	require.NoError(t, s.EnableAES(true, false))

	linkMode, err := devmgmt.SetLinkMode(mode, false)
	require.NoError(t, err)

	var want []byte
	want = append(want, devmgmt.Ping()...)
	want = append(want, devmgmt.Reset()...)
	want = append(want, devmgmt.GetDeviceInfo()...)
	want = append(want, devmgmt.FactoryReset(true)...)
	want = append(want, linkMode...)
	want = append(want, devmgmt.SetAutoRSSI(true, false)...)
	want = append(want, devmgmt.SetAutoTimestamp(true, false)...)
	want = append(want, devmgmt.EnableAES(true, false)...)
	assert.Equal(t, want, tr.Written())

	assert.Error(t, s.SetLinkMode(devmgmt.LinkMode(0x42), false))
}

func TestProvisionKey(t *testing.T) {
	tr := &transport{Reader: bytes.NewReader(nil)}
	s := NewStation(tr, newTestHost())

	events, err := s.Handle(mockTelegram(t))
	require.NoError(t, err)
	rec := events[0].(DeviceRegistered).Record

	key := bytes.Repeat([]byte{0xAB}, devmgmt.AESKeyLength)
	require.NoError(t, s.ProvisionKey(rec.KeyRequest(key)))

	want, err := devmgmt.SetAESKey(0, "ffff12aaaabb1213", key)
	require.NoError(t, err)
	assert.Equal(t, want, tr.Written())

	err = s.ProvisionKey(registry.KeyRequest{Index: 0, DeviceID: rec.ID(), Key: key[:4]})
	assert.True(t, errors.Is(err, devmgmt.ErrInvalidArgument), "%+v", err)
}
