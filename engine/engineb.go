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

// Model-B BAR 0 register indexes, per the register map: the first block
// is card/channel-wide control, the per-link superpage registers are
// fixed byte offsets shared across links, with the descriptor's slot
// index (0-3) in the low 4 bits of PAGES_AVAILABLE_AND_INDEX; these
// writes carry no link number. PUSHED_PAGES[i] is a card-maintained
// counter per link.
const (
	bResetControl         = 0 // bit0 engine reset, bit1 counter reset
	bDataEmulatorControl  = 1 // bit0 ready, bit1 generator start
	bStatusBaseBusLow     = 2
	bStatusBaseBusHigh    = 3
	bStatusBaseCardLow    = 4
	bStatusBaseCardHigh   = 5
	bDescriptorTableSize  = 6
	bDoneControl          = 7
	bDmaConfiguration     = 8  // data source in bits 15:8, datapath mode in bits 7:4
	bGbtControl           = 9  // link in bits 20:16, mux in bits 7:4, frame mode in bit 0
	bGeneratorControl     = 10 // pattern in bits 7:4, enable in bit 0
	bGeneratorDataSize    = 11 // per-page payload length in bytes
	bAddressHigh          = 0x210 / 4
	bAddressLow           = 0x214 / 4
	bPagesAvailableAndIdx = 0x234 / 4
	bStatus               = 0x23c / 4 // bit k = buffer k available
	bPushedPagesBase      = 0x240 / 4 // one card-maintained counter per link
)

const (
	maxLinksB       = 32
	slotsPerLinkB   = 4
	descriptorSlots = maxLinksB * slotsPerLinkB
	maxSlotBytes    = 2 << 20 // a slot's descriptor covers at most 2 MiB

	// linkQueueCapacity bounds each link's independent in-flight
	// superpage registry.
	linkQueueCapacity = 32

	// dmaStartRequiredSuperpages defers the hardware start until at least
	// this many superpages are queued, so the first pages always land in
	// real buffers.
	dmaStartRequiredSuperpages = 1
)

// linkSlot tracks one in-flight hardware descriptor slot.
type linkSlot struct {
	inUse     bool
	entryID   int
	byteCount int
}

// EngineB drives model B's 128-descriptor table partitioned across up to
// 32 links, 4 in-flight slots each. Each enabled link owns an independent
// superpage queue: a link stalled waiting for its slots to drain never
// blocks another link's unrelated superpages from being programmed, and
// no ordering is promised across links.
type EngineB struct {
	bar          *card.BAR
	buf          buffer.Provider
	statusWords  []uint32 // 128 in-host-memory completion markers, 1 per descriptor slot
	statusBuffer buffer.Provider
	pageSize     int

	links    []int // enabled link indexes, from Parameters.LinkMask (defaults to {0})
	queues   map[int]*spqueue.Queue
	nextLink int // round-robin index into links, for PushSuperpage
	popLink  int // round-robin index into links, for GetSuperpage/PopSuperpage
	slots    [maxLinksB][slotsPerLinkB]linkSlot

	wantStart bool
	started   bool

	resetLevel  params.ResetLevel
	loopback    params.LoopbackMode
	dataSource  params.DataSource
	datapath    params.DatapathMode
	readoutMode params.ReadoutMode
	gbtMode     params.GbtMode
	gbtMux      params.GbtMux

	generatorEnabled  bool
	generatorPattern  params.GeneratorPattern
	generatorDataSize int

	log   Logger
	sleep func(time.Duration)
}

// NewEngineB builds a model-B engine. statusPath backs the 128-word
// descriptor status table in host memory (the B analogue of A's
// ReadyFIFO), mapped the same way.
func NewEngineB(bar *card.BAR, buf buffer.Provider, p params.Parameters, statusPath string, log Logger, sleep func(time.Duration)) (*EngineB, error) {
	statusBuf, err := buffer.NewFile(statusPath, pmem.HugePageSize)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = nopLogger{}
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	links := p.LinkMask
	if len(links) == 0 {
		links = []int{0}
	}
	statusSlice := pmem.Slice(statusBuf.Bytes())
	queues := make(map[int]*spqueue.Queue, len(links))
	for _, link := range links {
		queues[link] = spqueue.New(linkQueueCapacity)
	}
	e := &EngineB{
		bar:          bar,
		buf:          buf,
		statusWords:  statusSlice.Uint32(),
		statusBuffer: statusBuf,
		pageSize:     p.DmaPageSize,
		links:        links,
		queues:       queues,
		resetLevel:   p.InitialResetLevel,
		loopback:     p.GeneratorLoopback,
		readoutMode:  p.ReadoutMode,
		dataSource:   dataSourceFromParams(p),
		datapath:     datapathFromReadoutMode(p.ReadoutMode),
		gbtMode:      p.GbtMode,
		gbtMux:       p.GbtMux,

		generatorEnabled:  p.GeneratorEnabled,
		generatorPattern:  p.GeneratorPattern,
		generatorDataSize: generatorDataSize(p),

		log:   log,
		sleep: sleep,
	}
	for i := range e.statusWords {
		e.statusWords[i] = 0
	}
	return e, nil
}

// TransferQueueAvailable reports the aggregate free capacity across every
// link's queue.
func (e *EngineB) TransferQueueAvailable() int {
	total := 0
	for _, q := range e.queues {
		total += q.Available()
	}
	return total
}

// ReadyQueueSize reports the aggregate number of filled, unpopped
// superpages across every link.
func (e *EngineB) ReadyQueueSize() int {
	total := 0
	for _, q := range e.queues {
		total += q.FilledLen()
	}
	return total
}

// PushSuperpage validates and enqueues a superpage on the next enabled
// link in round-robin order, onto that link's own queue. Programming the
// hardware happens later, in FillSuperpages.
func (e *EngineB) PushSuperpage(offset, size int) error {
	if size <= 0 || size%(32<<10) != 0 {
		return rocerr.New(rocerr.BadSuperpage, "model B superpage size %d must be a multiple of 32 KiB", size)
	}
	if offset%32 != 0 {
		return rocerr.New(rocerr.BadSuperpage, "offset %d must be 32-byte aligned", offset)
	}
	if offset+size > e.buf.Size() {
		return rocerr.New(rocerr.BadSuperpage, "offset+size (%d) exceeds buffer size %d", offset+size, e.buf.Size())
	}
	link := e.links[e.nextLink]
	e.nextLink = (e.nextLink + 1) % len(e.links)
	_, err := e.queues[link].Add(spqueue.Entry{
		Superpage: spqueue.Superpage{Offset: offset, Size: size},
		MaxPages:  size / e.pageSize,
	})
	return err
}

// FillSuperpages programs free descriptor slots for each link's
// incompletely-pushed front entry, then polls status words for
// completions.
func (e *EngineB) FillSuperpages() error {
	if e.wantStart && !e.started && e.queuedCount() >= dmaStartRequiredSuperpages {
		if err := e.runStartSequence(); err != nil {
			return err
		}
		e.started = true
	}
	for _, link := range e.links {
		if err := e.programLink(link); err != nil {
			return err
		}
	}
	return e.pollArrivals()
}

func (e *EngineB) queuedCount() int {
	total := 0
	for _, q := range e.queues {
		total += q.Count()
	}
	return total
}

func (e *EngineB) programLink(link int) error {
	q := e.queues[link]
	for slotIdx := 0; slotIdx < slotsPerLinkB; slotIdx++ {
		slot := &e.slots[link][slotIdx]
		if slot.inUse {
			continue
		}
		// Re-fetch the Pushing front each time: once an entry is fully
		// programmed, the remaining free slots go to the next one.
		id, err := q.PushingFrontID()
		if err != nil {
			return nil // nothing left to program on this link
		}
		entry := q.Entry(id)
		remaining := entry.MaxPages - entry.PushedPages
		chunkBytes := remaining * e.pageSize
		if chunkBytes > maxSlotBytes {
			chunkBytes = maxSlotBytes
		}
		chunkPages := chunkBytes / e.pageSize
		if chunkPages == 0 {
			continue
		}
		byteOffset := entry.Superpage.Offset + entry.PushedPages*e.pageSize
		bus, err := e.buf.BusOffset(byteOffset)
		if err != nil {
			return err
		}
		global := link*slotsPerLinkB + slotIdx
		atomic.StoreUint32(&e.statusWords[global], 0)
		e.bar.Write32(bAddressHigh, uint32(bus>>32))
		e.bar.Write32(bAddressLow, uint32(bus))
		// Writing PAGES_AVAILABLE_AND_INDEX triggers the slot; the status
		// word above must be cleared before this store lands.
		e.bar.Write32(bPagesAvailableAndIdx, uint32(chunkPages)<<4|uint32(slotIdx))

		*slot = linkSlot{inUse: true, entryID: id, byteCount: chunkPages * e.pageSize}
		entry.PushedPages += chunkPages
		if entry.IsPushed() {
			if _, err := q.RemoveFromPushing(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *EngineB) pollArrivals() error {
	for link := range e.slots {
		q, ok := e.queues[link]
		if !ok {
			continue
		}
		for slotIdx := range e.slots[link] {
			slot := &e.slots[link][slotIdx]
			if !slot.inUse {
				continue
			}
			global := link*slotsPerLinkB + slotIdx
			if atomic.LoadUint32(&e.statusWords[global]) != 1 {
				continue
			}
			atomic.StoreUint32(&e.statusWords[global], 0)
			entry := q.Entry(slot.entryID)
			entry.Superpage.Received += slot.byteCount
			*slot = linkSlot{}
			if entry.Superpage.Received >= entry.Superpage.Size {
				entry.Superpage.Ready = true
				if _, err := q.PromoteArrivalsToFilled(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// GetSuperpage peeks the oldest not-yet-popped superpage. There is no
// ordering across links, so this scans links round-robin starting from
// the next pop candidate and returns the first link with anything
// queued.
func (e *EngineB) GetSuperpage() (spqueue.Superpage, error) {
	id, q, err := e.frontAcrossLinks()
	if err != nil {
		return spqueue.Superpage{}, err
	}
	return q.Entry(id).Superpage, nil
}

// PopSuperpage removes and returns the oldest Filled superpage on
// whichever link has one ready, scanning round-robin across links.
func (e *EngineB) PopSuperpage() (spqueue.Superpage, error) {
	for i := 0; i < len(e.links); i++ {
		link := e.links[e.popLink]
		e.popLink = (e.popLink + 1) % len(e.links)
		q := e.queues[link]
		if q.FilledLen() > 0 {
			entry, err := q.PopFilled()
			return entry.Superpage, err
		}
	}
	return spqueue.Superpage{}, rocerr.New(rocerr.QueueEmpty, "no filled superpage ready on any link")
}

func (e *EngineB) frontAcrossLinks() (int, *spqueue.Queue, error) {
	for i := 0; i < len(e.links); i++ {
		q := e.queues[e.links[(e.popLink+i)%len(e.links)]]
		if id, err := q.FrontID(); err == nil {
			return id, q, nil
		}
	}
	return 0, nil, rocerr.New(rocerr.QueueEmpty, "no superpage queued on any link")
}

func (e *EngineB) StartDma() error {
	if e.wantStart {
		e.log.Printf("engine B: startDma called while already started, ignoring")
		return nil
	}
	e.wantStart = true
	return nil
}

// StopDma clears DATA_EMULATOR_CONTROL; the buffer stays registered.
func (e *EngineB) StopDma() error {
	if !e.wantStart {
		return nil
	}
	e.bar.Write32(bDataEmulatorControl, 0)
	e.wantStart = false
	e.started = false
	return nil
}

func (e *EngineB) ResetChannel(level params.ResetLevel) error {
	return RunReset(level, e, e.loopback, e.sleep)
}

// Close releases the descriptor status table's DMA registration. The
// data buffer itself is owned by the channel, not the engine.
func (e *EngineB) Close() error {
	return e.statusBuffer.Close()
}

func (e *EngineB) ResetDmaEngine() error {
	e.bar.Write32(bResetControl, 1)
	return nil
}
func (e *EngineB) ResetDiu() error  { e.bar.Write32(bResetControl, 2); return nil }
func (e *EngineB) ResetSiu() error  { e.bar.Write32(bResetControl, 4); return nil }
func (e *EngineB) ResetRorc() error { e.bar.Write32(bResetControl, 8); return nil }

// runStartSequence performs the model-B start sequence: reset the
// DMA engine, write the descriptor table size and the status table's bus
// address, enable per-descriptor status writes, configure data
// source/datapath and GBT per link, set the generator data size and
// pattern, then enable DMA emission.
func (e *EngineB) runStartSequence() error {
	if err := e.ResetDmaEngine(); err != nil {
		return err
	}
	e.bar.Write32(bDescriptorTableSize, descriptorSlots-1)
	bus, err := e.statusBuffer.BusOffset(0)
	if err != nil {
		return err
	}
	e.bar.Write32(bStatusBaseBusLow, uint32(bus))
	e.bar.Write32(bStatusBaseBusHigh, uint32(bus>>32))
	e.bar.Write32(bDoneControl, 1)
	e.bar.Write32(bDmaConfiguration, uint32(e.dataSource)<<8|uint32(e.datapath)<<4)
	for _, link := range e.links {
		e.bar.Write32(bGbtControl, uint32(link)<<16|uint32(e.gbtMux)<<4|uint32(e.gbtMode))
	}
	if e.generatorEnabled {
		e.bar.Write32(bGeneratorDataSize, uint32(e.generatorDataSize))
		e.bar.Write32(bGeneratorControl, uint32(e.generatorPattern)<<4|1)
	}
	e.bar.Write32(bDataEmulatorControl, 1) // enable DMA emission
	return nil
}

func dataSourceFromParams(p params.Parameters) params.DataSource {
	if p.GeneratorEnabled {
		return params.DataSourceInternal
	}
	return params.DataSourceFee
}

// generatorDataSize defaults the generator's per-page payload to a full
// page when the channel parameters leave it unset.
func generatorDataSize(p params.Parameters) int {
	if p.GeneratorDataSize > 0 {
		return p.GeneratorDataSize
	}
	return p.DmaPageSize
}

func datapathFromReadoutMode(m params.ReadoutMode) params.DatapathMode {
	if m == params.ReadoutTriggered {
		return params.DatapathPacket
	}
	return params.DatapathContinuous
}
