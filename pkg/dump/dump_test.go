package dump

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinand/pinand/pkg/devices"
	"github.com/pinand/pinand/pkg/geometry"
	"github.com/pinand/pinand/pkg/link"
	"github.com/pinand/pinand/pkg/nand"
	"github.com/pinand/pinand/pkg/sim"
)

const falcon = 0x01198010

func newNAND(t *testing.T) (*nand.Controller, *sim.Console) {
	t.Helper()
	con := sim.New(falcon)
	c := nand.New(link.New(con, devices.Descriptions[0].Pins, 0), nand.WithSleep(func(time.Duration) {}))
	require.NoError(t, c.Init())
	return c, con
}

func image(sectors int) []byte {
	b := make([]byte, sectors*RecordSize)
	for i := range b {
		b[i] = byte(i/RecordSize) ^ byte(i*13)
	}
	return b
}

func TestWriteThenRead(t *testing.T) {
	c, con := newNAND(t)
	img := image(64)

	var progress []uint32
	n, err := Write(context.Background(), c, bytes.NewReader(img), 0x20, func(done uint32) {
		progress = append(progress, done)
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(64), n)
	assert.Len(t, progress, 64)
	assert.Equal(t, uint32(64), progress[63])
	assert.Equal(t, 2, con.Stats().Erases)
	assert.Equal(t, img[:RecordSize], con.Sector(0x20))

	out := &bytes.Buffer{}
	require.NoError(t, Read(context.Background(), c, out, 0x20, 64, nil))
	assert.Equal(t, img, out.Bytes())
}

func TestWritePartialRecord(t *testing.T) {
	c, con := newNAND(t)
	img := append(image(2), 1, 2, 3)
	n, err := Write(context.Background(), c, bytes.NewReader(img), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, RecordSize), con.Sector(2))
}

type brokenSource struct{}

func (brokenSource) ReadSector(lba uint32) (d [nand.DataSize]byte, s [nand.SpareSize]byte, err error) {
	if lba == 3 {
		err = nand.ErrTimeout
	}
	return
}

func TestReadStopsOnError(t *testing.T) {
	out := &bytes.Buffer{}
	err := Read(context.Background(), brokenSource{}, out, 0, 10, nil)
	assert.ErrorIs(t, err, nand.ErrTimeout)
	assert.Equal(t, 3*RecordSize, out.Len())
}

func TestReadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := &bytes.Buffer{}
	err := Read(ctx, brokenSource{}, out, 0, 10, func(done uint32) {
		if done == 2 {
			cancel()
		}
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 2*RecordSize, out.Len())
}

func TestCompare(t *testing.T) {
	img := image(4)
	other := append([]byte(nil), img...)
	other[2*RecordSize+7] ^= 1

	for _, tc := range []struct {
		name string
		a, b []byte
		want int64
	}{
		{"identical", img, img, -1},
		{"empty", nil, nil, -1},
		{"differs", img, other, 2},
		{"shorter", img[:3*RecordSize], img, 3},
		{"longer", img, img[:RecordSize], 1},
		{"partial tail", img[:RecordSize+10], img[:RecordSize+11], 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compare(bytes.NewReader(tc.a), bytes.NewReader(tc.b))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	img := image(8)
	for _, name := range []string{"plain.bin", "packed.bin.xz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			w, err := Create(path)
			require.NoError(t, err)
			_, err = w.Write(img)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := Open(path)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, img, got)

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			if Compressed(path) {
				assert.NotEqual(t, img, raw)
			} else {
				assert.Equal(t, img, raw)
			}
		})
	}

	mismatch, err := CompareFiles(filepath.Join(dir, "plain.bin"), filepath.Join(dir, "packed.bin.xz"))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), mismatch)
}

func TestPathFor(t *testing.T) {
	g, err := geometry.Decode(falcon)
	require.NoError(t, err)
	at := time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)

	assert.Equal(t, "/tmp/x/nand-01198010-20240301-123005.bin", PathFor("/tmp/x", g, at, 0))
	assert.Equal(t, "/tmp/x/nand-01198010-20240301-123005-2.bin", PathFor("/tmp/x", g, at, 2))
	assert.True(t, strings.HasPrefix(PathFor("", g, at, 0), DefaultDir()))
}
