// Package channel composes the per-(card,channel) interprocess lock, the
// buffer provider and a family-specific engine into one exclusively-held
// DMA channel. It owns construction order (lock, then buffer, then BAR,
// then engine), the DMA state machine, and the thin getters (card type,
// PCI address, serial, NUMA node, firmware info, temperature) that pass
// straight through to card.Handle.
package channel

import (
	"fmt"
	"sync"

	"github.com/readoutcard/rocdma/buffer"
	"github.com/readoutcard/rocdma/card"
	"github.com/readoutcard/rocdma/engine"
	"github.com/readoutcard/rocdma/params"
	"github.com/readoutcard/rocdma/rocerr"
	"github.com/readoutcard/rocdma/spqueue"
)

// allowedChannels is the per-family channel-number allow-list: model A
// exposes six independent DMA channels, model B only channel 0 (its BAR 2
// is a register-only view belonging to other tools).
var allowedChannels = map[params.CardFamily][]int{
	params.FamilyA: {0, 1, 2, 3, 4, 5},
	params.FamilyB: {0},
}

func validateChannelNumber(family params.CardFamily, n int) error {
	for _, allowed := range allowedChannels[family] {
		if allowed == n {
			return nil
		}
	}
	return rocerr.New(rocerr.InvalidChannel, "channel %d is not valid for card family %s", n, family)
}

// dmaState tracks whether the engine has been asked to run.
type dmaState int

const (
	stateStopped dmaState = iota
	stateStarted
)

func (s dmaState) String() string {
	if s == stateStarted {
		return "Started"
	}
	return "Stopped"
}

// closer is implemented by engines that own a second DMA registration
// (engine A's ReadyFIFO, engine B's status table) needing release on
// Close.
type closer interface {
	Close() error
}

// Channel is ChannelBase: one exclusively-held DMA channel on one card.
type Channel struct {
	card *card.Handle
	bar  *card.BAR
	buf  buffer.Provider
	eng  engine.Engine
	lock *lock
	log  Logger

	state         dmaState
	bufID         string
	channelNumber int
}

// Open resolves params.CardID to a card, validates the channel number,
// acquires the composite channel lock, registers the DMA buffer and
// constructs the family-specific engine, in that order. Any failure
// partway unwinds everything acquired so far.
func Open(p params.Parameters, log Logger) (_ *Channel, retErr error) {
	if log == nil {
		log = nopLogger{}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	h, err := card.Find(p.CardID)
	if err != nil {
		return nil, err
	}
	var cleanups []func()
	unwind := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	defer func() {
		if retErr != nil {
			unwind()
		}
	}()
	cleanups = append(cleanups, func() { _ = h.Close() })

	if err := validateChannelNumber(h.Descriptor.Family, p.ChannelNumber); err != nil {
		return nil, err
	}

	if err := ensureDir(SharedMemDir, tmpfsMagic); err != nil {
		return nil, err
	}
	if err := ensureDir(HugePageDir, hugetlbfsMagic); err != nil {
		return nil, err
	}

	pci := h.Descriptor.Address
	l := newLock(LockPath(pci, p.ChannelNumber), MutexPath(pci, p.ChannelNumber))
	log.Debugf("[pci=%s channel=%d] acquiring channel lock", pci, p.ChannelNumber)
	if err := l.acquire(p.ForcedUnlock); err != nil {
		return nil, err
	}
	log.Debugf("[pci=%s channel=%d] acquired channel lock", pci, p.ChannelNumber)
	cleanups = append(cleanups, func() { _ = l.release() })

	bufID := fmt.Sprintf("%s:%d:buffer", pci, p.ChannelNumber)
	buf, err := registerBuffer(bufID, func() (buffer.Provider, error) { return openBuffer(p.Buffer) })
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() { unregisterBuffer(bufID); _ = buf.Close() })

	bar, err := h.Bar(0)
	if err != nil {
		return nil, err
	}

	eng, err := newEngine(h, bar, buf, p, engineLogAdapter{log})
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() {
		if cl, ok := eng.(closer); ok {
			_ = cl.Close()
		}
	})

	log.Infof("[pci=%s channel=%d] channel opened", pci, p.ChannelNumber)
	return &Channel{
		card:          h,
		bar:           bar,
		buf:           buf,
		eng:           eng,
		lock:          l,
		log:           log,
		bufID:         bufID,
		channelNumber: p.ChannelNumber,
	}, nil
}

// openBuffer constructs the Null/Memory/File buffer variant requested by
// p.
func openBuffer(p params.BufferParameters) (buffer.Provider, error) {
	switch p.Kind {
	case params.BufferMemory:
		return buffer.NewMemory(p.MemoryAddr)
	case params.BufferFile:
		return buffer.NewFile(p.FilePath, p.FileSize)
	default:
		return buffer.Null{}, nil
	}
}

// newEngine builds the family-specific engine. Engine A
// additionally allocates its 128-entry ReadyFIFO as a second DMA buffer;
// engine B does the analogous thing with its descriptor status table.
// Both are internal to the engine constructors; Channel only needs to
// release them again on Close (see the closer interface above).
func newEngine(h *card.Handle, bar *card.BAR, buf buffer.Provider, p params.Parameters, log engine.Logger) (engine.Engine, error) {
	pci := h.Descriptor.Address
	switch h.Descriptor.Family {
	case params.FamilyA:
		return engine.NewEngineA(bar, buf, p, ReadyFifoPath(pci, p.ChannelNumber), log, nil)
	case params.FamilyB:
		return engine.NewEngineB(bar, buf, p, StatusTablePath(pci, p.ChannelNumber), log, nil)
	default:
		return nil, rocerr.New(rocerr.InvalidChannel, "unknown card family %s", h.Descriptor.Family)
	}
}

// Close stops DMA if running, drops the engine, unregisters the DMA
// buffer and releases the composite lock, deleting its backing files.
func (c *Channel) Close() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if c.state == stateStarted {
		record(c.eng.StopDma())
	}
	if cl, ok := c.eng.(closer); ok {
		record(cl.Close())
	}
	unregisterBuffer(c.bufID)
	record(c.buf.Close())
	record(c.card.Close())
	record(c.lock.release())
	c.log.Infof("[pci=%s channel=%d] channel closed", c.GetPciAddress(), c.channelNumber)
	return first
}

// StartDma is idempotent: the engine itself logs a warning and no-ops on
// a second call.
func (c *Channel) StartDma() error {
	if err := c.eng.StartDma(); err != nil {
		return err
	}
	c.state = stateStarted
	return nil
}

// StopDma is idempotent.
func (c *Channel) StopDma() error {
	if err := c.eng.StopDma(); err != nil {
		return err
	}
	c.state = stateStopped
	return nil
}

// ResetChannel runs the reset orchestration. Valid only in Stopped
// state.
func (c *Channel) ResetChannel(level params.ResetLevel) error {
	if c.state != stateStopped {
		return rocerr.New(rocerr.BadState, "resetChannel requires Stopped state, channel is %s", c.state)
	}
	return c.eng.ResetChannel(level)
}

func (c *Channel) PushSuperpage(offset, size int) error {
	return c.eng.PushSuperpage(offset, size)
}

func (c *Channel) FillSuperpages() error {
	return c.eng.FillSuperpages()
}

func (c *Channel) GetSuperpage() (spqueue.Superpage, error) {
	return c.eng.GetSuperpage()
}

func (c *Channel) PopSuperpage() (spqueue.Superpage, error) {
	return c.eng.PopSuperpage()
}

func (c *Channel) GetTransferQueueAvailable() int { return c.eng.TransferQueueAvailable() }
func (c *Channel) GetReadyQueueSize() int         { return c.eng.ReadyQueueSize() }

func (c *Channel) GetCardType() params.CardFamily   { return c.card.Descriptor.Family }
func (c *Channel) GetPciAddress() params.PciAddress { return c.card.Descriptor.Address }
func (c *Channel) GetSerial() int                   { return c.card.Serial }
func (c *Channel) GetNumaNode() int                 { return c.card.Descriptor.NumaNode }

// GetFirmwareInfo returns the decoded firmware fingerprint, or an error
// (FirmwareMagicMismatch, or Unavailable if the BAR can't be read) if it
// can't be decoded.
func (c *Channel) GetFirmwareInfo() (string, error) {
	info, err := c.card.FirmwareInfo()
	if err != nil {
		return "", err
	}
	return info.String(), nil
}

// GetTemperature returns the card's temperature in degrees Celsius, or an
// Unavailable-kind error if the raw register value is out of range.
func (c *Channel) GetTemperature() (float64, error) {
	return c.card.Temperature()
}

var (
	bufRegMu sync.Mutex
	bufReg   = map[string]buffer.Provider{}
)

// registerBuffer simulates the kernel DMA layer's per-ID registration
// table closely enough to exercise its one observable
// behaviour: a channel that wasn't cleanly closed leaves its buffer ID
// registered, and the next Open for that same ID closes and unregisters
// the stale entry before registering the new buffer. The registration
// itself is attempted once; its failure is reported as
// DmaRegistrationFailed.
func registerBuffer(id string, open func() (buffer.Provider, error)) (buffer.Provider, error) {
	bufRegMu.Lock()
	if stale, ok := bufReg[id]; ok {
		_ = stale.Close()
		delete(bufReg, id)
	}
	bufRegMu.Unlock()

	b, err := open()
	if err != nil {
		return nil, rocerr.Wrap(err, rocerr.DmaRegistrationFailed, "registering DMA buffer %s (cleanup hint: close any channel still holding this buffer ID)", id)
	}
	bufRegMu.Lock()
	bufReg[id] = b
	bufRegMu.Unlock()
	return b, nil
}

func unregisterBuffer(id string) {
	bufRegMu.Lock()
	delete(bufReg, id)
	bufRegMu.Unlock()
}
