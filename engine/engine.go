// Package engine drives the on-card descriptor engine: model A's 128-slot
// ReadyFIFO, or model B's per-link descriptor table. Both satisfy Engine,
// the common capability set the channel composes against; there is no
// shared base type, only the common interface.
package engine

import (
	"github.com/readoutcard/rocdma/params"
	"github.com/readoutcard/rocdma/spqueue"
)

// Engine is the capability set both card families implement.
type Engine interface {
	StartDma() error
	StopDma() error
	ResetChannel(level params.ResetLevel) error

	PushSuperpage(offset, size int) error
	FillSuperpages() error
	GetSuperpage() (spqueue.Superpage, error)
	PopSuperpage() (spqueue.Superpage, error)

	TransferQueueAvailable() int
	ReadyQueueSize() int
}

// Logger is the ambient logging hook engines report through, satisfied by
// *log.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
}

// nopLogger discards everything; used when a caller doesn't supply one.
type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}
