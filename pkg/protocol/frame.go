// Package protocol implements the flasher command protocol spoken by host
// side NAND tools over a serial link: fixed 5-byte command frames answered by
// 4-byte little-endian status words and 528-byte sector payloads.
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// Version is reported to GET_VERSION.
	Version = 3

	FrameSize  = 5
	StatusSize = 4

	StatusOK          uint32 = 0
	StatusFailed      uint32 = 0x8000
	StatusUnsupported uint32 = 0xffffffff
)

type Opcode uint8

const (
	OpGetVersion Opcode = 0x00
	OpGetConfig  Opcode = 0x01
	OpReadFlash  Opcode = 0x02
	OpWriteFlash Opcode = 0x03
	OpReadStream Opcode = 0x04

	OpEMMCDetect     Opcode = 0x50
	OpEMMCInit       Opcode = 0x51
	OpEMMCGetCID     Opcode = 0x52
	OpEMMCGetCSD     Opcode = 0x53
	OpEMMCGetExtCSD  Opcode = 0x54
	OpEMMCRead       Opcode = 0x55
	OpEMMCReadStream Opcode = 0x56
	OpEMMCWrite      Opcode = 0x57

	OpISD1200Init Opcode = 0xa0

	// OpRebootBootloader is understood by other flashers but not here.
	OpRebootBootloader Opcode = 0xfe
)

var opcodeNames = map[Opcode]string{
	OpGetVersion:       "GET_VERSION",
	OpGetConfig:        "GET_CONFIG",
	OpReadFlash:        "READ_FLASH",
	OpWriteFlash:       "WRITE_FLASH",
	OpReadStream:       "READ_STREAM",
	OpEMMCDetect:       "EMMC_DETECT",
	OpEMMCInit:         "EMMC_INIT",
	OpEMMCGetCID:       "EMMC_GET_CID",
	OpEMMCGetCSD:       "EMMC_GET_CSD",
	OpEMMCGetExtCSD:    "EMMC_GET_EXT_CSD",
	OpEMMCRead:         "EMMC_READ",
	OpEMMCReadStream:   "EMMC_READ_STREAM",
	OpEMMCWrite:        "EMMC_WRITE",
	OpISD1200Init:      "ISD1200_INIT",
	OpRebootBootloader: "REBOOT_BOOTLOADER",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(%#02x)", uint8(o))
}

// Unsupported returns whether o belongs to a command family (eMMC, voice
// chip) that is recognized but answered with StatusUnsupported.
func (o Opcode) Unsupported() bool {
	return (o >= OpEMMCDetect && o <= OpEMMCWrite) || o == OpISD1200Init
}

// Frame is a command sent by the host. Arg is a sector number or a sector
// count depending on Op.
type Frame struct {
	Op  Opcode
	Arg uint32
}

func (f Frame) String() string {
	return fmt.Sprintf("%s(%#x)", f.Op, f.Arg)
}

// Encode returns the wire representation of f.
func (f Frame) Encode() [FrameSize]byte {
	var b [FrameSize]byte
	b[0] = byte(f.Op)
	binary.LittleEndian.PutUint32(b[1:], f.Arg)
	return b
}

// DecodeFrame parses the wire representation of a frame.
func DecodeFrame(b [FrameSize]byte) Frame {
	return Frame{
		Op:  Opcode(b[0]),
		Arg: binary.LittleEndian.Uint32(b[1:]),
	}
}

func encodeStatus(v uint32) []byte {
	b := make([]byte, StatusSize)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
