package geometry

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	for _, tc := range []struct {
		name                    string
		raw                     uint32
		ctrl, blk               uint8
		pages, blocks, fsBlocks uint32
		model                   string
	}{
		{"falcon", 0x01198010, 0, 1, 0x20, 0x400, 0x3e0, "Xenon/Zephyr/Falcon/older Jasper 16MB"},
		{"small 32MB", 0x00000020, 0, 2, 0x20, 0x800, 0x7c0, "unknown console"},
		{"small 64MB", 0x00000030, 0, 3, 0x20, 0x1000, 0xf80, "unknown console"},
		{"trinity", 0x00023010, 1, 1, 0x20, 0x400, 0x3e0, "newer Jasper 16MB/Trinity"},
		{"jasper 256MB", 0x008a3020, 1, 2, 0x100, 0x800, 0x1e0, "Jasper 256/512MB"},
		{"jasper 512MB", 0x00aa3020, 1, 2, 0x100, 0x1000, 0x1e0, "Jasper 256/512MB"},
		{"corona 16MB", 0x00043000, 2, 0, 0x20, 0x400, 0x3e0, "Corona 16MB"},
		{"ctrl 2 block 1", 0x00043010, 2, 1, 0x20, 0x1000, 0xf80, "unknown console"},
		{"ctrl 2 block 2", 0x00053020, 2, 2, 0x100, 0x40, 0x1e0, "unknown console"},
		{"ctrl 1 block 3", 0x00023030, 1, 3, 0x200, 0x20, 0xf0, "unknown console"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, err := Decode(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.raw, g.Raw)
			assert.Equal(t, tc.ctrl, g.ControllerType)
			assert.Equal(t, tc.blk, g.BlockType)
			assert.Equal(t, uint32(PageSize), g.PageSize)
			assert.Equal(t, tc.pages, g.PagesCount)
			assert.Equal(t, tc.blocks, g.BlocksCount)
			assert.Equal(t, tc.fsBlocks, g.FSBlocks)
			assert.Equal(t, tc.model, g.Model())
		})
	}
}

func TestDecodeBigBlockFormula(t *testing.T) {
	// ctrl 1, block 2, size bits at 19 (2 bits) and 21 (4 bits).
	for extra19 := uint32(0); extra19 < 4; extra19++ {
		for extra21 := uint32(0); extra21 < 16; extra21++ {
			raw := extra21<<21 | extra19<<19 | 1<<17 | 2<<4
			g, err := Decode(raw)
			require.NoError(t, err)
			want := uint32((uint64(1) << (extra19 + extra21 + 23)) >> 17)
			assert.Equalf(t, want, g.BlocksCount, "raw %#08x", raw)
		}
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, raw := range []uint32{
		0,
		0x00000000 | 1<<19, // ctrl 0, block 0
		0x00020000,         // ctrl 1, block 0
		0x00060010,         // ctrl 3, block 1
		0x00060030,         // ctrl 3, block 3
	} {
		g, err := Decode(raw)
		assert.Nilf(t, g, "raw %#08x", raw)
		assert.ErrorIsf(t, err, ErrInvalidGeometry, "raw %#08x", raw)
		assert.Falsef(t, errors.Is(err, ErrUnsupportedVariant), "raw %#08x", raw)
	}
}

func TestDecodeUnsupported(t *testing.T) {
	g, err := Decode(0x00063000)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, ErrUnsupportedVariant)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestDecodeIsTotal(t *testing.T) {
	r := rand.New(rand.NewSource(360))
	for i := 0; i < 10000; i++ {
		raw := r.Uint32()
		g, err := Decode(raw)
		if err != nil {
			require.Nil(t, g)
			require.ErrorIs(t, err, ErrInvalidGeometry)
			continue
		}
		require.NotNil(t, g)
		require.NotZero(t, g.PagesCount, "raw %#08x", raw)
		require.NotZero(t, g.BlocksCount, "raw %#08x", raw)
		require.NotZero(t, g.FSBlocks, "raw %#08x", raw)

		again, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, g, again)
	}
}

func TestDerived(t *testing.T) {
	g, err := Decode(0x008a3020)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x100), g.SectorsPerBlock())
	assert.Equal(t, uint32(0x20000), g.BlockSize())
	assert.Equal(t, uint32(0x80000), g.TotalSectors())
	assert.Equal(t, uint64(256<<20), g.Size())
	assert.Contains(t, g.String(), "NAND size: 256 MB")

	g, err = Decode(0x01198010)
	require.NoError(t, err)
	assert.Equal(t, uint64(16<<20), g.Size())
	assert.Contains(t, g.String(), "Block size: 0x4000 (16 KB)")
	assert.Contains(t, g.String(), "FS blocks: 0x03e0")
}
