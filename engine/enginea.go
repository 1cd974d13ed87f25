package engine

import (
	"sync/atomic"
	"time"

	"github.com/readoutcard/rocdma/buffer"
	"github.com/readoutcard/rocdma/card"
	"github.com/readoutcard/rocdma/host/pmem"
	"github.com/readoutcard/rocdma/params"
	"github.com/readoutcard/rocdma/rocerr"
	"github.com/readoutcard/rocdma/spqueue"
)

// Model-A register indexes. The driver issues opaque command words
// through the CSR rather than bit fields; the push contract is
// {dst_bus_low, dst_bus_high, length_words, slot_index} followed by the
// RAFX trigger, and arrivals are polled from the host-side ReadyFIFO.
const (
	aCSR       = 0  // control/status, takes the aCmd* words below
	aERR       = 1  // error status
	aDCR       = 2  // downstream interface command register
	aDSR       = 3  // downstream interface status, version in the low byte
	aDG1       = 4  // generator initial value
	aDG2       = 5  // generator initial word
	aDG3       = 6  // generator pattern select and seed
	aDG4       = 7  // generator page length in bytes
	aRRBARLow  = 8  // ReadyFIFO base bus address, low word
	aRRBARHigh = 9  // ReadyFIFO base bus address, high word
	aRAFL      = 10 // free-FIFO destination bus address, low word
	aRAFH      = 11 // free-FIFO destination bus address, high word
	aRAFX      = 12 // length_words<<8 | slot_index; the write triggers the push
	aTMCS      = 13 // trigger module control
)

// Opaque command words written to the CSR. The driver issues these
// whole; the card decodes them internally.
const (
	aCmdResetDma      = 0x001
	aCmdResetDiu      = 0x002
	aCmdResetSiu      = 0x004
	aCmdResetRorc     = 0x008
	aCmdStartReceiver = 0x010
	aCmdLoopbackInt   = 0x020
	aCmdLoopbackSiu   = 0x040
	aCmdStartGen      = 0x080
	aCmdCifst         = 0x100
	aCmdStopGenerator = 0x200
	aCmdEobtr         = 0x400
	aCmdStopReceiver  = 0x800
)

// Fixed generator arming values; the pattern and page size vary per
// channel, the rest the card treats as opaque seeds.
const (
	generatorInitialValue = 0
	generatorInitialWord  = 0
	generatorSeed         = 0
)

const ringSizeA = 128

// maxSubPushBytes is the per-push family limit. Superpage sizes are
// capped at 2 MiB, so a superpage is at most two sub-pushes; the ring
// arms them page by page either way.
const maxSubPushBytes = 1 << 20

// dmaStartRequiredSuperpagesA is engine A's degenerate start threshold.
const dmaStartRequiredSuperpagesA = 1

// EngineA drives model A's fixed 128-slot ReadyFIFO.
type EngineA struct {
	bar      *card.BAR
	buf      buffer.Provider
	fifo     buffer.Provider
	fifoView []uint32 // (length,status) pairs, 2 uint32 per slot
	pageSize int

	q *spqueue.Queue

	ringUsed int // slots armed, awaiting arrival
	ringHead int // next ring slot to arm
	ringTail int // oldest armed, not yet arrived

	wantStart bool
	started   bool

	resetLevel       params.ResetLevel
	loopback         params.LoopbackMode
	generatorEnabled bool
	generatorPattern params.GeneratorPattern

	log   Logger
	sleep func(time.Duration)
}

// NewEngineA builds a model-A engine. fifoPath is the hugetlbfs-backed
// file the 128-entry ReadyFIFO is mapped from, registered as a second DMA
// buffer per the channel construction sequence.
func NewEngineA(bar *card.BAR, buf buffer.Provider, p params.Parameters, fifoPath string, log Logger, sleep func(time.Duration)) (*EngineA, error) {
	fifo, err := buffer.NewFile(fifoPath, pageSizeToFifoBytes())
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = nopLogger{}
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	fifoSlice := pmem.Slice(fifo.Bytes())
	e := &EngineA{
		bar:              bar,
		buf:              buf,
		fifo:             fifo,
		fifoView:         fifoSlice.Uint32(),
		pageSize:         p.DmaPageSize,
		q:                spqueue.New(32),
		resetLevel:       p.InitialResetLevel,
		loopback:         p.GeneratorLoopback,
		generatorEnabled: p.GeneratorEnabled,
		generatorPattern: p.GeneratorPattern,
		log:              log,
		sleep:            sleep,
	}
	for i := 0; i < ringSizeA; i++ {
		e.clearFifoSlot(i)
	}
	return e, nil
}

func pageSizeToFifoBytes() int {
	return pmem.HugePageSize
}

func (e *EngineA) TransferQueueAvailable() int { return e.q.Available() }
func (e *EngineA) ReadyQueueSize() int         { return e.q.FilledLen() }

// PushSuperpage validates and eagerly arms one superpage's pages into
// the Free FIFO.
func (e *EngineA) PushSuperpage(offset, size int) error {
	if size <= 0 || size > 2*maxSubPushBytes || size%maxSubPushBytes != 0 {
		return rocerr.New(rocerr.BadSuperpage, "model A superpage size %d must be a multiple of 1 MiB, <= 2 MiB", size)
	}
	if offset%4 != 0 {
		return rocerr.New(rocerr.BadSuperpage, "offset %d must be 4-byte aligned", offset)
	}
	if offset+size > e.buf.Size() {
		return rocerr.New(rocerr.BadSuperpage, "offset+size (%d) exceeds buffer size %d", offset+size, e.buf.Size())
	}
	maxPages := size / e.pageSize
	if e.ringUsed+maxPages > ringSizeA {
		return rocerr.New(rocerr.QueueFull, "descriptor ring has %d of %d slots used, need %d", e.ringUsed, ringSizeA, maxPages)
	}
	if _, err := e.q.Add(spqueue.Entry{
		Superpage: spqueue.Superpage{Offset: offset, Size: size},
		MaxPages:  maxPages,
	}); err != nil {
		return err
	}
	for i := 0; i < maxPages; i++ {
		bus, err := e.buf.BusOffset(offset + i*e.pageSize)
		if err != nil {
			return err
		}
		e.armSlot(e.ringHead, bus, uint32(e.pageSize/4))
		e.ringHead = (e.ringHead + 1) % ringSizeA
	}
	e.ringUsed += maxPages
	return nil
}

// armSlot enqueues one Free-FIFO entry. The RAFX write is the trigger:
// the address words must have landed before it (Write32 is an atomic
// store, so the card observes them in program order).
func (e *EngineA) armSlot(slot int, busAddr uint64, lengthWords uint32) {
	e.bar.Write32(aRAFL, uint32(busAddr))
	e.bar.Write32(aRAFH, uint32(busAddr>>32))
	e.bar.Write32(aRAFX, lengthWords<<8|uint32(slot))
}

// FillSuperpages runs the deferred start sequence (once enough
// superpages are queued) and then walks the ReadyFIFO for new arrivals.
func (e *EngineA) FillSuperpages() error {
	if e.wantStart && !e.started && e.q.Count() >= dmaStartRequiredSuperpagesA {
		if err := e.runStartSequence(); err != nil {
			return err
		}
		e.started = true
	}
	return e.drainArrivals()
}

func (e *EngineA) drainArrivals() error {
	for e.ringUsed > 0 {
		length, status := e.readFifoSlot(e.ringTail)
		kind, words, err := parseArrivalStatus(status, length)
		switch kind {
		case notArrived, partial:
			return nil
		case arrivalErr:
			e.log.Printf("engine A: arrival error at ring slot %d: %v", e.ringTail, err)
			e.clearFifoSlot(e.ringTail)
			e.ringTail = (e.ringTail + 1) % ringSizeA
			e.ringUsed--
			if abortErr := e.abortFrontSuperpage(); abortErr != nil {
				return abortErr
			}
		case whole:
			e.clearFifoSlot(e.ringTail)
			e.ringTail = (e.ringTail + 1) % ringSizeA
			e.ringUsed--
			if err := e.completeOnePage(int(words) * 4); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *EngineA) completeOnePage(bytesWritten int) error {
	entry, err := e.q.PushingFrontEntry()
	if err != nil {
		return err
	}
	entry.PushedPages++
	entry.Superpage.Received += bytesWritten
	if entry.PushedPages == entry.MaxPages {
		entry.Superpage.Ready = true
		if _, err := e.q.RemoveFromPushing(); err != nil {
			return err
		}
		if _, err := e.q.PromoteArrivalsToFilled(); err != nil {
			return err
		}
	}
	return nil
}

// abortFrontSuperpage surfaces the front superpage as ready with a short
// byte count after a hardware arrival error, then retires its remaining
// armed ring slots so later arrivals cannot be credited to the wrong
// superpage.
func (e *EngineA) abortFrontSuperpage() error {
	entry, err := e.q.PushingFrontEntry()
	if err != nil {
		return err
	}
	// All MaxPages slots were armed at push time; PushedPages of them
	// arrived and the error slot was already consumed by the caller.
	for skip := entry.MaxPages - entry.PushedPages - 1; skip > 0; skip-- {
		e.clearFifoSlot(e.ringTail)
		e.ringTail = (e.ringTail + 1) % ringSizeA
		e.ringUsed--
	}
	entry.Superpage.Ready = true
	if _, err := e.q.ForceRemoveFromPushing(); err != nil {
		return err
	}
	if _, err := e.q.ForceMoveArrivalsToFilled(); err != nil {
		return err
	}
	return nil
}

// readFifoSlot reads one (length, status) pair. The card DMA-writes these
// words concurrently, so the loads go through sync/atomic: a cached or
// reordered read here could miss an arrival forever.
func (e *EngineA) readFifoSlot(slot int) (length uint32, status int32) {
	return atomic.LoadUint32(&e.fifoView[slot*2]), int32(atomic.LoadUint32(&e.fifoView[slot*2+1]))
}

func (e *EngineA) clearFifoSlot(slot int) {
	atomic.StoreUint32(&e.fifoView[slot*2], 0)
	atomic.StoreUint32(&e.fifoView[slot*2+1], 0xFFFFFFFF) // not-arrived sentinel (-1)
}

func (e *EngineA) GetSuperpage() (spqueue.Superpage, error) {
	id, err := e.q.FrontID()
	if err != nil {
		return spqueue.Superpage{}, err
	}
	return e.q.Entry(id).Superpage, nil
}

func (e *EngineA) PopSuperpage() (spqueue.Superpage, error) {
	entry, err := e.q.PopFilled()
	if err != nil {
		return spqueue.Superpage{}, err
	}
	return entry.Superpage, nil
}

// StartDma records intent; the actual hardware start sequence is deferred
// to the first FillSuperpages once enough superpages are queued.
func (e *EngineA) StartDma() error {
	if e.wantStart {
		e.log.Printf("engine A: startDma called while already started, ignoring")
		return nil
	}
	e.wantStart = true
	return nil
}

func (e *EngineA) StopDma() error {
	if !e.wantStart {
		return nil
	}
	if e.generatorEnabled {
		e.bar.Write32(aCSR, aCmdStopGenerator)
	} else {
		e.bar.Write32(aCSR, aCmdEobtr) // end-of-block to the front-end
	}
	e.bar.Write32(aCSR, aCmdStopReceiver)
	e.wantStart = false
	e.started = false
	return nil
}

func (e *EngineA) ResetChannel(level params.ResetLevel) error {
	return RunReset(level, e, e.loopback, e.sleep)
}

// Close releases the ReadyFIFO's DMA registration. The data buffer
// itself is owned by the channel, not the engine.
func (e *EngineA) Close() error {
	return e.fifo.Close()
}

func (e *EngineA) ResetDmaEngine() error {
	e.bar.Write32(aCSR, aCmdResetDma) // clears the Free FIFO as well
	return nil
}
func (e *EngineA) ResetDiu() error  { e.bar.Write32(aCSR, aCmdResetDiu); return nil }
func (e *EngineA) ResetSiu() error  { e.bar.Write32(aCSR, aCmdResetSiu); return nil }
func (e *EngineA) ResetRorc() error { e.bar.Write32(aCSR, aCmdResetRorc); return nil }

// runStartSequence performs the model-A start sequence: discover the
// downstream interface version, issue the configured reset, start the
// data receiver with the ReadyFIFO bus address, arm the generator or the
// external trigger, then give the already-armed initial slots a fixed
// settle window.
func (e *EngineA) runStartSequence() error {
	version := e.bar.Read32(aDSR) & 0xff
	e.log.Printf("engine A: downstream interface version %d", version)

	if err := e.ResetChannel(e.resetLevel); err != nil {
		return err
	}
	fifoBus, err := e.fifo.BusOffset(0)
	if err != nil {
		return err
	}
	e.bar.Write32(aRRBARLow, uint32(fifoBus))
	e.bar.Write32(aRRBARHigh, uint32(fifoBus>>32))
	e.bar.Write32(aCSR, aCmdStartReceiver)

	if e.generatorEnabled {
		e.bar.Write32(aDG1, generatorInitialValue)
		e.bar.Write32(aDG2, generatorInitialWord)
		e.bar.Write32(aDG3, uint32(e.generatorPattern)<<16|generatorSeed)
		e.bar.Write32(aDG4, uint32(e.pageSize))
		if e.loopback == params.LoopbackInternal {
			e.bar.Write32(aCSR, aCmdLoopbackInt)
		} else if e.loopback == params.LoopbackSiu {
			e.bar.Write32(aDCR, aCmdLoopbackSiu)
		}
		e.bar.Write32(aCSR, aCmdStartGen)
	} else {
		// CIFST to SIU and DIU, then start the downstream trigger.
		e.bar.Write32(aDCR, aCmdCifst)
		e.bar.Write32(aTMCS, 1)
	}

	e.sleep(10 * time.Millisecond)
	last, status := e.readFifoSlot((e.ringHead - 1 + ringSizeA) % ringSizeA)
	if kind, _, _ := parseArrivalStatus(status, last); kind != whole {
		e.log.Printf("engine A: initial slot did not settle within 10ms (status=0x%08x)", uint32(status))
	}
	return nil
}
