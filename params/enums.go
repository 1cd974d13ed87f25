package params

import (
	"strings"

	"github.com/readoutcard/rocdma/rocerr"
)

// LoopbackMode selects how the card's transmitter is routed back to its
// receiver for the internal generator, bypassing part or all of the
// optical link.
type LoopbackMode int

const (
	LoopbackNone LoopbackMode = iota
	LoopbackInternal
	LoopbackDiu
	LoopbackSiu
)

func (m LoopbackMode) String() string {
	switch m {
	case LoopbackNone:
		return "None"
	case LoopbackInternal:
		return "Internal"
	case LoopbackDiu:
		return "Diu"
	case LoopbackSiu:
		return "Siu"
	default:
		return "Unknown"
	}
}

// ParseLoopbackMode parses the loopback mode string from the
// generator-loopback channel parameter.
func ParseLoopbackMode(s string) (LoopbackMode, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return LoopbackNone, nil
	case "internal":
		return LoopbackInternal, nil
	case "diu":
		return LoopbackDiu, nil
	case "siu":
		return LoopbackSiu, nil
	default:
		return 0, rocerr.New(rocerr.BadParameter, "unknown loopback mode %q", s)
	}
}

// GeneratorPattern selects the internal pattern generator's output pattern.
type GeneratorPattern int

const (
	PatternIncremental GeneratorPattern = iota
	PatternAlternating
	PatternConstant
	PatternRandom
)

func (p GeneratorPattern) String() string {
	switch p {
	case PatternIncremental:
		return "Incremental"
	case PatternAlternating:
		return "Alternating"
	case PatternConstant:
		return "Constant"
	case PatternRandom:
		return "Random"
	default:
		return "Unknown"
	}
}

// ParseGeneratorPattern parses the generator-pattern channel parameter.
func ParseGeneratorPattern(s string) (GeneratorPattern, error) {
	switch strings.ToLower(s) {
	case "incremental", "":
		return PatternIncremental, nil
	case "alternating":
		return PatternAlternating, nil
	case "constant":
		return PatternConstant, nil
	case "random":
		return PatternRandom, nil
	default:
		return 0, rocerr.New(rocerr.BadParameter, "unknown generator pattern %q", s)
	}
}

// DataSource selects where the card's DMA engine reads page data from.
type DataSource int

const (
	DataSourceFee DataSource = iota
	DataSourceDiu
	DataSourceSiu
	DataSourceInternal
	DataSourceDdg
)

func (d DataSource) String() string {
	switch d {
	case DataSourceFee:
		return "Fee"
	case DataSourceDiu:
		return "Diu"
	case DataSourceSiu:
		return "Siu"
	case DataSourceInternal:
		return "Internal"
	case DataSourceDdg:
		return "Ddg"
	default:
		return "Unknown"
	}
}

// ReadoutMode selects the card's readout cadence (model B).
type ReadoutMode int

const (
	ReadoutContinuous ReadoutMode = iota
	ReadoutTriggered
)

func (r ReadoutMode) String() string {
	switch r {
	case ReadoutContinuous:
		return "Continuous"
	case ReadoutTriggered:
		return "Triggered"
	default:
		return "Unknown"
	}
}

// ParseReadoutMode parses the readout-mode channel parameter.
func ParseReadoutMode(s string) (ReadoutMode, error) {
	switch strings.ToLower(s) {
	case "continuous", "":
		return ReadoutContinuous, nil
	case "triggered":
		return ReadoutTriggered, nil
	default:
		return 0, rocerr.New(rocerr.BadParameter, "unknown readout mode %q", s)
	}
}

// DatapathMode selects whether the card emits a continuous byte stream or
// discrete packets per trigger (model B).
type DatapathMode int

const (
	DatapathContinuous DatapathMode = iota
	DatapathPacket
)

func (d DatapathMode) String() string {
	if d == DatapathPacket {
		return "Packet"
	}
	return "Continuous"
}

// GbtMode selects the GBT link's frame encoding (model B).
type GbtMode int

const (
	GbtModeGbt GbtMode = iota
	GbtModeWideBus
)

func (g GbtMode) String() string {
	if g == GbtModeWideBus {
		return "WideBus"
	}
	return "Gbt"
}

// GbtMux selects which data multiplexes onto a link's GBT frame (model B).
type GbtMux int

const (
	GbtMuxTtc GbtMux = iota
	GbtMuxDdg
	GbtMuxSwt
)

func (g GbtMux) String() string {
	switch g {
	case GbtMuxDdg:
		return "Ddg"
	case GbtMuxSwt:
		return "Swt"
	default:
		return "Ttc"
	}
}

// ResetLevel selects how much of the reset orchestration to run.
type ResetLevel int

const (
	ResetNothing ResetLevel = iota
	ResetInternal
	ResetInternalDiuSiu
)

func (r ResetLevel) String() string {
	switch r {
	case ResetInternal:
		return "Internal"
	case ResetInternalDiuSiu:
		return "InternalDiuSiu"
	default:
		return "Nothing"
	}
}

// CardFamily distinguishes the two supported hardware generations.
type CardFamily int

const (
	FamilyA CardFamily = iota
	FamilyB
)

func (f CardFamily) String() string {
	if f == FamilyB {
		return "B"
	}
	return "A"
}
