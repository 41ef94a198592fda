// Package geometry decodes the flash controller's configuration word into the
// layout of the attached NAND.
package geometry

import (
	"errors"
	"fmt"
	"strings"
)

// PageSize is the size of a NAND page (sector) payload, without spare.
const PageSize = 0x200

var (
	// ErrInvalidGeometry is returned for configuration words that do not
	// describe any known controller/block combination.
	ErrInvalidGeometry = errors.New("invalid flash geometry")
	// ErrUnsupportedVariant is returned for combinations that are known to
	// exist but are not handled (the eMMC based 4GB console).
	ErrUnsupportedVariant = fmt.Errorf("%w: unsupported console variant", ErrInvalidGeometry)
)

// Geometry describes a NAND as reported by the flash controller. All fields
// but Raw are derived from Raw. PagesCount is the number of pages in one erase
// block.
type Geometry struct {
	Raw            uint32
	ControllerType uint8
	BlockType      uint8
	PageSize       uint32
	PagesCount     uint32
	BlocksCount    uint32
	FSBlocks       uint32
}

type layout struct {
	pages, blocks, fsBlocks uint32
}

// fixed are the layouts that don't depend on the size bits.
var fixed = map[[2]uint8]layout{
	{0, 1}: {0x20, 0x400, 0x3e0},
	{0, 2}: {0x20, 0x800, 0x7c0},
	{0, 3}: {0x20, 0x1000, 0xf80},
	{1, 1}: {0x20, 0x400, 0x3e0},
	{2, 0}: {0x20, 0x400, 0x3e0},
	{2, 1}: {0x20, 0x1000, 0xf80},
}

// Decode parses a raw configuration word. It returns either a fully
// populated Geometry or an error wrapping ErrInvalidGeometry.
func Decode(raw uint32) (*Geometry, error) {
	if raw == 0 {
		return nil, fmt.Errorf("%w: configuration word is zero", ErrInvalidGeometry)
	}
	ctrl := uint8(raw>>17) & 3
	blk := uint8(raw>>4) & 3

	g := &Geometry{
		Raw:            raw,
		ControllerType: ctrl,
		BlockType:      blk,
		PageSize:       PageSize,
	}

	if l, ok := fixed[[2]uint8{ctrl, blk}]; ok {
		g.PagesCount, g.BlocksCount, g.FSBlocks = l.pages, l.blocks, l.fsBlocks
		return g, nil
	}

	switch {
	case (ctrl == 1 || ctrl == 2) && blk >= 2:
		extra := (raw>>19)&3 + (raw>>21)&15
		total := uint64(1) << (extra + 23)
		if blk == 2 {
			g.PagesCount = 0x100
			g.BlocksCount = uint32(total >> 17)
			g.FSBlocks = 0x1e0
		} else {
			g.PagesCount = 0x200
			g.BlocksCount = uint32(total >> 18)
			g.FSBlocks = 0xf0
		}
		return g, nil
	case ctrl == 3 && blk == 0:
		return nil, fmt.Errorf("%w (config %#08x)", ErrUnsupportedVariant, raw)
	}
	return nil, fmt.Errorf("%w: controller type %d, block type %d (config %#08x)", ErrInvalidGeometry, ctrl, blk, raw)
}

// SectorsPerBlock is the number of 512-byte sectors in one erase block.
func (g *Geometry) SectorsPerBlock() uint32 {
	return g.PagesCount
}

// BlockSize is the size of an erase block in bytes, without spare.
func (g *Geometry) BlockSize() uint32 {
	return g.PageSize * g.PagesCount
}

// TotalSectors is the number of addressable sectors on the NAND.
func (g *Geometry) TotalSectors() uint32 {
	return g.PagesCount * g.BlocksCount
}

// Size is the NAND size in bytes, without spare.
func (g *Geometry) Size() uint64 {
	return uint64(g.BlockSize()) * uint64(g.BlocksCount)
}

// Model names the console family this geometry is found in.
func (g *Geometry) Model() string {
	switch [2]uint8{g.ControllerType, g.BlockType} {
	case [2]uint8{0, 1}:
		return "Xenon/Zephyr/Falcon/older Jasper 16MB"
	case [2]uint8{1, 1}:
		return "newer Jasper 16MB/Trinity"
	case [2]uint8{1, 2}:
		return "Jasper 256/512MB"
	case [2]uint8{2, 0}:
		return "Corona 16MB"
	}
	return "unknown console"
}

func (g *Geometry) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Flash config: 0x%08x\n", g.Raw)
	fmt.Fprintf(&sb, "\t%s\n", g.Model())
	fmt.Fprintf(&sb, "\tBlocks count: %#x\n", g.BlocksCount)
	fmt.Fprintf(&sb, "\tPage size: %#x\n", g.PageSize)
	bs := g.BlockSize()
	fmt.Fprintf(&sb, "\tBlock size: %#x (%d KB)\n", bs, bs/1024)
	if kb := g.Size() / 1024; kb < 1024 {
		fmt.Fprintf(&sb, "\tNAND size: %d KB\n", kb)
	} else {
		fmt.Fprintf(&sb, "\tNAND size: %d MB\n", kb/1024)
	}
	fmt.Fprintf(&sb, "\tFS blocks: 0x%04x", g.FSBlocks)
	return sb.String()
}
