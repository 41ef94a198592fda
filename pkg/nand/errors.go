package nand

import (
	"errors"
	"fmt"
)

// Stage names the step of a sector operation that was waiting on the
// controller.
type Stage string

const (
	StageRead         Stage = "read"
	StageErase        Stage = "erase"
	StageWriteData    Stage = "write-data"
	StageWriteAddress Stage = "write-address"
	StageWriteExecute Stage = "write-execute"
)

// Code is the numeric failure code reported for a stage, as printed by the
// command line tools.
func (s Stage) Code() int {
	switch s {
	case StageRead:
		return -1
	case StageErase:
		return -2
	case StageWriteData:
		return -3
	case StageWriteAddress:
		return -4
	case StageWriteExecute:
		return -5
	}
	return -128
}

var (
	ErrTimeout        = errors.New("timed out waiting for NAND controller")
	ErrNotInitialized = errors.New("NAND controller not initialized")
)

// TimeoutError is returned when the controller stayed busy for longer than
// the poll limit. The device may be left mid-sequence, callers have to retry
// the whole operation.
type TimeoutError struct {
	Stage Stage
	LBA   uint32
	Polls int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s of sector %#x: status stuck busy after %d polls", e.Stage, e.LBA, e.Polls)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Code() int {
	return e.Stage.Code()
}
