// Package card enumerates supported devices and exposes their BAR
// register windows, serial number, temperature and firmware fingerprint.
package card

import (
	"fmt"
	"os"

	"github.com/readoutcard/rocdma/host/fs"
	"github.com/readoutcard/rocdma/host/pmem"
	"github.com/readoutcard/rocdma/host/syspci"
	"github.com/readoutcard/rocdma/params"
	"github.com/readoutcard/rocdma/rocerr"
)

// FirmwareInfo is the decoded FIRMWARE_COMPILE_INFO register.
type FirmwareInfo struct {
	Major int
	Minor int
	Year  int
	Month int
	Day   int
}

// Handle is a resolved, bindable card: its sysfs descriptor plus whichever
// BAR windows have been mapped so far.
type Handle struct {
	Descriptor syspci.Descriptor
	Serial     int

	bars map[int]*BAR
}

// Find resolves a card identifier to a Handle. For BySerial identifiers,
// every discovered card's BAR 2 is mapped and its serial register
// compared, since the serial number lives in hardware, not sysfs.
func Find(id params.CardID) (*Handle, error) {
	cards, err := syspci.FindCards()
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, rocerr.New(rocerr.CardNotFound, "no supported PCI devices discovered")
	}

	if id.Kind != params.BySerial {
		desc, err := syspci.FindCard(id, cards)
		if err != nil {
			return nil, err
		}
		return newHandle(desc)
	}

	for _, desc := range cards {
		h, err := newHandle(desc)
		if err != nil {
			continue
		}
		if h.Serial == id.Serial {
			return h, nil
		}
		_ = h.Close()
	}
	return nil, rocerr.New(rocerr.CardNotFound, "no card with serial %d", id.Serial)
}

func newHandle(desc syspci.Descriptor) (*Handle, error) {
	h := &Handle{Descriptor: desc, bars: make(map[int]*BAR)}
	bar2, err := h.Bar(2)
	if err != nil {
		return nil, err
	}
	h.Serial = int(bar2.Read32(serialNumberIndex))
	return h, nil
}

// Bar lazily maps and returns BAR window n.
func (h *Handle) Bar(n int) (*BAR, error) {
	if b, ok := h.bars[n]; ok {
		return b, nil
	}
	path := h.Descriptor.ResourcePath(n)
	f, err := fs.Open(path, os.O_RDWR)
	if err != nil {
		return nil, rocerr.Wrap(err, rocerr.CardNotFound, "mapping BAR %d of %s", n, h.Descriptor.Address)
	}
	fi, err := os.Stat(path)
	if err != nil {
		_ = f.Close()
		return nil, rocerr.Wrap(err, rocerr.CardNotFound, "stat BAR %d resource file", n)
	}
	view, err := pmem.MapFd(f, 0, int(fi.Size()))
	if err != nil {
		_ = f.Close()
		return nil, rocerr.Wrap(err, rocerr.CardNotFound, "mmap BAR %d of %s", n, h.Descriptor.Address)
	}
	b := NewBAR(view)
	h.bars[n] = b
	return b, nil
}

// Close unmaps every BAR window opened on this handle.
func (h *Handle) Close() error {
	var first error
	for _, b := range h.bars {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	h.bars = make(map[int]*BAR)
	return first
}

// Temperature reads BAR 2's 10-bit raw temperature register and converts
// it to degrees Celsius. Raw values of 0 or >1023 are not valid readings.
func (h *Handle) Temperature() (float64, error) {
	bar2, err := h.Bar(2)
	if err != nil {
		return 0, err
	}
	return decodeTemperature(bar2.Read32(temperatureIndex) & 0x3ff)
}

func decodeTemperature(raw uint32) (float64, error) {
	if raw == 0 || raw > 1023 {
		return 0, rocerr.New(rocerr.Unavailable, "temperature register reads %d", raw)
	}
	return (693.0*float64(raw))/1024.0 - 265.0, nil
}

// FirmwareInfo reads and decodes BAR 2's FIRMWARE_COMPILE_INFO register.
func (h *Handle) FirmwareInfo() (FirmwareInfo, error) {
	bar2, err := h.Bar(2)
	if err != nil {
		return FirmwareInfo{}, rocerr.Wrap(err, rocerr.Unavailable, "reading firmware info")
	}
	return decodeFirmwareInfo(bar2.Read32(firmwareInfoIndex))
}

func decodeFirmwareInfo(raw uint32) (FirmwareInfo, error) {
	if raw&firmwareReservedMask != firmwareReservedExpect {
		return FirmwareInfo{}, rocerr.New(rocerr.FirmwareMagicMismatch, "reserved bits = 0x%x, want 0x%x", raw&firmwareReservedMask, firmwareReservedExpect)
	}
	return FirmwareInfo{
		Major: int((raw >> 20) & 0xf),
		Minor: int((raw >> 13) & 0x7f),
		Year:  2000 + int((raw>>9)&0xf),
		Month: int((raw >> 5) & 0xf),
		Day:   int(raw & 0x1f),
	}, nil
}

func (f FirmwareInfo) String() string {
	return fmt.Sprintf("%d.%d (%04d-%02d-%02d)", f.Major, f.Minor, f.Year, f.Month, f.Day)
}
