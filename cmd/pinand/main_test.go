package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinand/pinand/pkg/geometry"
)

func TestParseNumber(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want uint32
	}{
		{"0", 0},
		{"42", 42},
		{"0x10", 0x10},
		{"0X1f", 0x1f},
		{"ff", 0xff},
	} {
		got, err := parseNumber(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	for _, in := range []string{"", "0x", "zz", "0x100000000"} {
		_, err := parseNumber(in)
		assert.Error(t, err, in)
	}
}

func TestBlockRange(t *testing.T) {
	g, err := geometry.Decode(0x01198010)
	require.NoError(t, err)

	first, count, err := blockRange(g, "0", "")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, g.TotalSectors(), count)

	first, count, err = blockRange(g, "0x10", "2")
	require.NoError(t, err)
	assert.Equal(t, 0x10*g.SectorsPerBlock(), first)
	assert.Equal(t, 2*g.SectorsPerBlock(), count)

	_, _, err = blockRange(g, "0x400", "")
	assert.Error(t, err)
	_, _, err = blockRange(g, "0x3ff", "2")
	assert.Error(t, err)
	_, _, err = blockRange(g, "0", "0")
	assert.Error(t, err)
}

func TestPassPath(t *testing.T) {
	g, err := geometry.Decode(0x01198010)
	require.NoError(t, err)
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	assert.Equal(t, "nand.bin", passPath("nand.bin", "", g, now, 0))
	assert.Equal(t, "nand-1.bin", passPath("nand.bin", "", g, now, 1))
	assert.Equal(t, "out/nand-2.bin.xz", passPath("out/nand.bin.xz", "", g, now, 2))
	assert.Equal(t, "dumps/nand-01198010-20240301-123000-1.bin", passPath("", "dumps", g, now, 1))
}
