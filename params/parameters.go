package params

import "github.com/readoutcard/rocdma/rocerr"

// BufferKind selects which BufferProvider variant Parameters describes.
type BufferKind int

const (
	// BufferNone means no buffer was configured; only valid before the
	// buffer provider is constructed.
	BufferNone BufferKind = iota
	BufferMemory
	BufferFile
)

// BufferParameters is the tagged union backing the buffer-parameters
// channel parameter: either a client-supplied memory region or a
// huge-page-backed file.
type BufferParameters struct {
	Kind BufferKind

	// Memory variant.
	MemoryAddr []byte
	MemorySize int

	// File variant.
	FilePath string
	FileSize int
}

// Parameters is the full set of recognised channel-construction options.
// CardID, ChannelNumber and Buffer are required; everything else has a
// documented default.
type Parameters struct {
	CardID        CardID
	ChannelNumber int

	// DmaPageSize is the atomic DMA write unit, in bytes. Default 8192;
	// must be a multiple of 32.
	DmaPageSize int

	Buffer BufferParameters

	GeneratorEnabled  bool
	GeneratorPattern  GeneratorPattern
	GeneratorDataSize int
	GeneratorLoopback LoopbackMode

	ReadoutMode ReadoutMode
	LinkMask    []int

	// GbtMode and GbtMux select each enabled link's frame encoding and
	// data multiplexer (model B).
	GbtMode GbtMode
	GbtMux  GbtMux

	// InitialResetLevel is the reset orchestration level the deferred
	// start sequence issues before arming the card.
	InitialResetLevel ResetLevel

	// ForcedUnlock requests one retry after removing an orphaned named
	// mutex during lock acquisition.
	ForcedUnlock bool
}

// DefaultDmaPageSize is used when Parameters.DmaPageSize is left at zero.
const DefaultDmaPageSize = 8192

// Validate fills in defaults and checks the required fields and documented
// constraints. It does not know about card families; channel
// number range checking happens against the resolved Card in ChannelBase.
func (p *Parameters) Validate() error {
	if p.ChannelNumber < 0 {
		return rocerr.New(rocerr.BadParameter, "channel-number must be non-negative, got %d", p.ChannelNumber)
	}
	if p.DmaPageSize == 0 {
		p.DmaPageSize = DefaultDmaPageSize
	}
	if p.DmaPageSize%32 != 0 {
		return rocerr.New(rocerr.BadParameter, "dma-page-size must be a multiple of 32 bytes, got %d", p.DmaPageSize)
	}
	switch p.Buffer.Kind {
	case BufferMemory:
		if p.Buffer.MemorySize <= 0 {
			return rocerr.New(rocerr.BadParameter, "Memory buffer-parameters requires a positive size")
		}
	case BufferFile:
		if p.Buffer.FilePath == "" || p.Buffer.FileSize <= 0 {
			return rocerr.New(rocerr.BadParameter, "File buffer-parameters requires a path and a positive size")
		}
	case BufferNone:
		return rocerr.New(rocerr.BadParameter, "buffer-parameters is required")
	}
	return nil
}
