package engine

import (
	"testing"

	"github.com/readoutcard/rocdma/params"
	"github.com/readoutcard/rocdma/rocerr"
	"github.com/readoutcard/rocdma/spqueue"
)

const testPageSizeB = 8192

func newTestEngineB(t *testing.T, links []int) *EngineB {
	t.Helper()
	queues := make(map[int]*spqueue.Queue, len(links))
	for _, link := range links {
		queues[link] = spqueue.New(linkQueueCapacity)
	}
	return &EngineB{
		bar:          fakeBAR(0x300),
		buf:          newFakeBuffer(64 << 20),
		statusBuffer: newFakeBuffer(128 * 4),
		statusWords:  make([]uint32, descriptorSlots),
		pageSize:     testPageSizeB,
		links:        links,
		queues:       queues,
		loopback:     params.LoopbackNone,
		log:          nopLogger{},
		sleep:        noSleep,
	}
}

func TestEngineBPushAndFillSingleSuperpage(t *testing.T) {
	e := newTestEngineB(t, []int{0})
	if err := e.StartDma(); err != nil {
		t.Fatalf("StartDma: %v", err)
	}
	const size = 64 << 10 // one slot's worth, well under the 2MiB cap
	if err := e.PushSuperpage(0, size); err != nil {
		t.Fatalf("PushSuperpage: %v", err)
	}
	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("first FillSuperpages: %v", err)
	}
	// Slot (link 0, index 0) signals arrival.
	e.statusWords[0] = 1
	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("second FillSuperpages: %v", err)
	}
	if got := e.ReadyQueueSize(); got != 1 {
		t.Fatalf("ReadyQueueSize() = %d, want 1", got)
	}
	sp, err := e.PopSuperpage()
	if err != nil {
		t.Fatalf("PopSuperpage: %v", err)
	}
	if sp.Size != size || sp.Received != size || !sp.Ready {
		t.Errorf("PopSuperpage() = %+v, want size=%d received=%d ready=true", sp, size, size)
	}
}

func TestEngineBPushRejectsBadSuperpage(t *testing.T) {
	e := newTestEngineB(t, []int{0})
	data := []struct {
		name   string
		offset int
		size   int
	}{
		{"not a multiple of 32KiB", 0, (32 << 10) + 1},
		{"misaligned offset", 1, 32 << 10},
		{"exceeds buffer", 1 << 30, 32 << 10},
	}
	for _, d := range data {
		if err := e.PushSuperpage(d.offset, d.size); !rocerr.Is(err, rocerr.BadSuperpage) {
			t.Errorf("%s: PushSuperpage error = %v, want BadSuperpage", d.name, err)
		}
	}
}

// TestEngineBArrivalCreditsPushingEntry pins the slot-to-entry mapping:
// with a filled-but-unpopped superpage still in the link's queue, a new
// arrival must be credited to the entry its descriptor slot was armed
// for, not to whichever entry happens to be oldest overall.
func TestEngineBArrivalCreditsPushingEntry(t *testing.T) {
	e := newTestEngineB(t, []int{0})
	const size = 64 << 10
	if err := e.PushSuperpage(0, size); err != nil {
		t.Fatalf("push first: %v", err)
	}
	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("program first: %v", err)
	}
	e.statusWords[0] = 1
	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("complete first: %v", err)
	}
	// First superpage is now Filled but not popped.
	if err := e.PushSuperpage(size, size); err != nil {
		t.Fatalf("push second: %v", err)
	}
	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("program second: %v", err)
	}
	e.statusWords[0] = 1 // slot 0 was reused for the second superpage
	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("complete second: %v", err)
	}
	if got := e.ReadyQueueSize(); got != 2 {
		t.Fatalf("ReadyQueueSize() = %d, want 2", got)
	}
	first, err := e.PopSuperpage()
	if err != nil {
		t.Fatalf("pop first: %v", err)
	}
	if first.Offset != 0 || first.Received != size {
		t.Errorf("first superpage = %+v, want offset=0 received=%d", first, size)
	}
	second, err := e.PopSuperpage()
	if err != nil {
		t.Fatalf("pop second: %v", err)
	}
	if second.Offset != size || second.Received != size {
		t.Errorf("second superpage = %+v, want offset=%d received=%d", second, size, size)
	}
}

// TestEngineBLinksAreIndependent pins the per-link queue design: a link
// stalled mid-superpage must not prevent an unrelated link from making
// progress. With a single shared queue, link 1's entry would sit behind
// link 0's in the same FIFO and never reach the front for programming.
func TestEngineBLinksAreIndependent(t *testing.T) {
	e := newTestEngineB(t, []int{0, 1})
	if err := e.StartDma(); err != nil {
		t.Fatalf("StartDma: %v", err)
	}
	// link 0: large enough that one FillSuperpages call (4 slots * 2MiB
	// cap) cannot fully program it, so it stays in link 0's Pushing queue.
	if err := e.PushSuperpage(0, 10<<20); err != nil {
		t.Fatalf("push to link 0: %v", err)
	}
	// link 1: small, fits in a single slot.
	const smallSize = 64 << 10
	if err := e.PushSuperpage(10<<20, smallSize); err != nil {
		t.Fatalf("push to link 1: %v", err)
	}
	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("FillSuperpages: %v", err)
	}

	link0Pushed := e.queues[0].PushingLen() // still incompletely pushed
	if link0Pushed != 1 {
		t.Fatalf("link 0 Pushing length = %d, want 1 (entry not fully pushed yet)", link0Pushed)
	}
	if got := e.queues[1].PushingLen(); got != 0 {
		t.Fatalf("link 1 Pushing length = %d, want 0 (small entry should have been fully programmed)", got)
	}

	// link 1's single slot is (link=1, slotIdx=0) => global index 4.
	e.statusWords[4] = 1
	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("second FillSuperpages: %v", err)
	}
	if got := e.ReadyQueueSize(); got != 1 {
		t.Fatalf("ReadyQueueSize() = %d, want 1 (link 1's superpage ready, link 0's still in flight)", got)
	}
}
