package engine

import (
	"time"

	"github.com/readoutcard/rocdma/params"
	"github.com/readoutcard/rocdma/rocerr"
)

// ResetSteps are the individual hardware actions a reset sequence issues.
// Both EngineA and EngineB implement this against their own register
// layouts; RunReset sequences the calls and the mandated delays.
type ResetSteps interface {
	ResetDmaEngine() error
	ResetDiu() error
	ResetSiu() error
	ResetRorc() error
}

// RunReset executes the reset sequence for level. Nothing short-circuits.
// Internal only resets the DMA engine. InternalDiuSiu additionally arms
// the downstream interfaces, with two fixed 100ms settle delays that are
// part of the hardware contract: reset-DIU, wait, reset-SIU, reset-DIU
// again, reset-RORC, wait.
//
// sleep is injectable so tests don't pay the real delay.
func RunReset(level params.ResetLevel, steps ResetSteps, loopback params.LoopbackMode, sleep func(time.Duration)) error {
	if level == params.ResetNothing {
		return nil
	}
	if err := steps.ResetDmaEngine(); err != nil {
		return resetFailed(err, level, loopback)
	}
	if level == params.ResetInternal {
		return nil
	}
	if err := steps.ResetDiu(); err != nil {
		return resetFailed(err, level, loopback)
	}
	sleep(100 * time.Millisecond)
	if err := steps.ResetSiu(); err != nil {
		return resetFailed(err, level, loopback)
	}
	if err := steps.ResetDiu(); err != nil {
		return resetFailed(err, level, loopback)
	}
	if err := steps.ResetRorc(); err != nil {
		return resetFailed(err, level, loopback)
	}
	sleep(100 * time.Millisecond)
	return nil
}

func resetFailed(cause error, level params.ResetLevel, loopback params.LoopbackMode) error {
	return rocerr.Wrap(cause, rocerr.ResetFailed, "reset level %s", level).
		With("level", level.String()).
		With("loopback", loopback.String())
}
