package engine

import "github.com/readoutcard/rocdma/rocerr"

// arrivalKind classifies one ReadyFIFO (length,status) slot.
type arrivalKind int

const (
	notArrived arrivalKind = iota
	partial
	whole
	arrivalErr
)

// dtsw is the "whole page arrived" status tag, masked against the low
// byte of the status word.
const dtsw = 0x82

// errorBit marks a hardware-reported arrival error.
const errorBit = 1 << 31

// parseArrivalStatus decodes one ReadyFIFO status word, per the family-A
// arrival encoding: -1 not arrived, 0 partially arrived, low byte == dtsw
// whole page arrived (length is the page size in 32-bit words), anything
// else (including the error bit) an arrival error.
func parseArrivalStatus(status int32, length uint32) (arrivalKind, uint32, error) {
	switch {
	case status == -1:
		return notArrived, 0, nil
	case status == 0:
		return partial, 0, nil
	case uint32(status)&errorBit != 0:
		return arrivalErr, 0, rocerr.New(rocerr.ArrivalError, "status word 0x%08x has the error bit set", uint32(status))
	case uint32(status)&0xff == dtsw:
		return whole, length, nil
	default:
		return arrivalErr, 0, rocerr.New(rocerr.ArrivalError, "status word 0x%08x is not a recognised arrival code", uint32(status))
	}
}
