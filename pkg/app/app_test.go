package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinand/pinand/pkg/config"
	"github.com/pinand/pinand/pkg/devices"
	"github.com/pinand/pinand/pkg/link"
	"github.com/pinand/pinand/pkg/sim"
)

func TestSession(t *testing.T) {
	cfg := config.Default()
	con := sim.New(0x01198010)
	a, err := New(cfg, con)
	require.NoError(t, err)
	assert.Equal(t, devices.Descriptions[0].Pins, a.Pins)

	require.NoError(t, a.Init())
	assert.True(t, con.FlashMode())
	assert.Equal(t, link.DefaultClock, con.Clock())

	require.NoError(t, a.Close())
	assert.False(t, con.FlashMode())
	assert.False(t, a.Link.IsOpen())
}

func TestSessionFailedInit(t *testing.T) {
	con := sim.New(0)
	a, err := New(config.Default(), con)
	require.NoError(t, err)
	assert.Error(t, a.Init())
	assert.True(t, a.Link.IsOpen())

	require.NoError(t, a.Close())
	assert.False(t, a.Link.IsOpen())
	assert.False(t, con.FlashMode())
}

func TestSessionUnsupportedConsole(t *testing.T) {
	con := sim.New(0x00063000)
	a, err := New(config.Default(), con)
	require.NoError(t, err)
	require.Error(t, a.Init())
	assert.True(t, con.FlashMode())

	require.NoError(t, a.Close())
	assert.False(t, con.FlashMode())
	assert.Equal(t, 1, con.Stats().Handshakes)
}

func TestSessionBadBoard(t *testing.T) {
	cfg := config.Default()
	cfg.Board = "pi0"
	_, err := New(cfg, sim.New(0x01198010))
	assert.Error(t, err)
}
