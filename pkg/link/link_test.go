package link

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/pinand/pinand/pkg/devices"
)

var testPins = devices.Pins{XX: 23, EJ: 24, SS: 26}

// recorder is a devices.Bus that logs every call and answers transfers with
// a canned reply.
type recorder struct {
	events   []string
	reply    []byte
	sent     [][]byte
	slept    time.Duration
	clock    physic.Frequency
	xferErr  error
	closeErr error
}

func (r *recorder) SetDirection(p devices.Pin, d devices.Direction) error {
	r.events = append(r.events, fmt.Sprintf("dir %s %s", p, d))
	return nil
}

func (r *recorder) SetLevel(p devices.Pin, l gpio.Level) error {
	r.events = append(r.events, fmt.Sprintf("%s=%s", p, l))
	return nil
}

func (r *recorder) Level(p devices.Pin) (gpio.Level, error) {
	return gpio.High, nil
}

func (r *recorder) OpenSPI(f physic.Frequency) error {
	r.events = append(r.events, "spi open")
	r.clock = f
	return nil
}

func (r *recorder) CloseSPI() error {
	r.events = append(r.events, "spi close")
	return r.closeErr
}

func (r *recorder) Transfer(w, rd []byte) error {
	r.events = append(r.events, fmt.Sprintf("xfer %d", len(w)))
	r.sent = append(r.sent, append([]byte(nil), w...))
	copy(rd, r.reply)
	return r.xferErr
}

func (r *recorder) Sleep(d time.Duration) {
	r.events = append(r.events, fmt.Sprintf("sleep %s", d))
	r.slept += d
}

func (r *recorder) Close() error { return nil }

func openLink(t *testing.T) (*Link, *recorder) {
	t.Helper()
	r := &recorder{}
	l := New(r, testPins, 0)
	require.NoError(t, l.Open())
	r.events = nil
	return l, r
}

func TestOpenIsIdempotent(t *testing.T) {
	r := &recorder{}
	l := New(r, testPins, 0)
	require.NoError(t, l.Open())
	assert.Equal(t, []string{
		"dir GPIO23 output", "dir GPIO24 output", "dir GPIO26 output",
		"GPIO23=High", "GPIO24=High", "GPIO26=High",
		"spi open",
	}, r.events)
	assert.Equal(t, DefaultClock, r.clock)
	assert.True(t, l.IsOpen())

	r.events = nil
	require.NoError(t, l.Open())
	assert.Empty(t, r.events)
}

func TestClose(t *testing.T) {
	l, r := openLink(t)
	require.NoError(t, l.Close())
	assert.Equal(t, []string{"spi close", "GPIO23=High", "GPIO24=High", "GPIO26=High"}, r.events)
	assert.False(t, l.IsOpen())

	l, r = openLink(t)
	r.closeErr = errors.New("busy")
	err := l.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")
}

func TestEnterFlashMode(t *testing.T) {
	l, r := openLink(t)
	require.NoError(t, l.EnterFlashMode())
	assert.Equal(t, []string{
		"GPIO23=Low", "sleep 50ms",
		"GPIO26=Low", "GPIO24=Low", "sleep 50ms",
		"GPIO23=High", "GPIO24=High", "sleep 50ms",
		"GPIO26=Low",
	}, r.events)
	assert.Equal(t, 150*time.Millisecond, r.slept)
}

func TestLeaveFlashMode(t *testing.T) {
	l, r := openLink(t)
	require.NoError(t, l.LeaveFlashMode())
	assert.Equal(t, []string{
		"GPIO26=High", "GPIO24=Low", "sleep 50ms",
		"GPIO23=Low", "GPIO24=High", "sleep 50ms",
		"GPIO23=High",
	}, r.events)
}

func TestReadFrame(t *testing.T) {
	// (0x04<<2)|1 = 0x11, mirrored 0x88.
	assert.Equal(t, []byte{0x88, 0xff, 0, 0, 0, 0}, ReadFrame(0x04))
	assert.Equal(t, []byte{0x80, 0xff, 0, 0, 0, 0}, ReadFrame(0x00))
}

func TestWriteFrame(t *testing.T) {
	// (0x08<<2)|2 = 0x22 -> 0x44; 0x00000055 LE -> 55 00 00 00 -> aa 00 00 00.
	assert.Equal(t, []byte{0x44, 0xaa, 0, 0, 0}, WriteFrame(0x08, 0x55))
	// 0x0c<<2|2 = 0x32 -> 0x4c; 0x12345678 LE -> 78 56 34 12 -> 1e 6a 2c 48.
	assert.Equal(t, []byte{0x4c, 0x1e, 0x6a, 0x2c, 0x48}, WriteFrame(0x0c, 0x12345678))
}

func TestReadRegister(t *testing.T) {
	l, r := openLink(t)
	// 0x12345678 little-endian, each byte mirrored.
	r.reply = []byte{0x00, 0x00, 0x1e, 0x6a, 0x2c, 0x48}
	v, err := l.ReadRegister(0x00)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)
	assert.Equal(t, []string{"GPIO26=Low", "sleep " + SettleDelay.String(), "xfer 6", "GPIO26=High"}, r.events)
	assert.Equal(t, [][]byte{ReadFrame(0x00)}, r.sent)
}

func TestWriteRegister(t *testing.T) {
	l, r := openLink(t)
	require.NoError(t, l.WriteRegister(0x0c, 0x12345678))
	assert.Equal(t, []string{"GPIO26=Low", "sleep " + SettleDelay.String(), "xfer 5", "GPIO26=High"}, r.events)
	assert.Equal(t, [][]byte{{0x4c, 0x1e, 0x6a, 0x2c, 0x48}}, r.sent)
}

func TestTransferErrors(t *testing.T) {
	l := New(&recorder{}, testPins, 0)
	_, err := l.ReadRegister(0x04)
	assert.ErrorIs(t, err, devices.ErrSPIClosed)

	l, r := openLink(t)
	boom := errors.New("boom")
	r.xferErr = boom
	err = l.WriteRegister(0x04, 1)
	assert.ErrorIs(t, err, boom)
	// Chip select is still released.
	assert.Equal(t, "GPIO26=High", r.events[len(r.events)-1])
}
