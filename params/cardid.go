package params

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/readoutcard/rocdma/rocerr"
)

// CardIDKind distinguishes the three ways a card can be named.
type CardIDKind int

const (
	// BySerial identifies a card by its decimal serial number.
	BySerial CardIDKind = iota
	// ByPciAddress identifies a card by its PCI bus:slot.function address.
	ByPciAddress
	// BySequence identifies a card by its ordinal among discovered devices.
	BySequence
)

// PciAddress is a PCIe bus:slot.function triple. Bus ranges 0-0xff, slot
// 0-0x1f, function 0-7.
type PciAddress struct {
	Bus      int
	Slot     int
	Function int
}

func (p PciAddress) String() string {
	return fmt.Sprintf("%02x:%02x.%x", p.Bus, p.Slot, p.Function)
}

var pciAddressRE = regexp.MustCompile(`^([0-9a-fA-F]{1,2}):([0-9a-fA-F]{1,2})\.([0-7])$`)

// ParsePciAddress parses a "bus:slot.function" string in hex.
func ParsePciAddress(s string) (PciAddress, error) {
	m := pciAddressRE.FindStringSubmatch(s)
	if m == nil {
		return PciAddress{}, rocerr.New(rocerr.BadParameter, "malformed PCI address %q", s)
	}
	bus, _ := strconv.ParseInt(m[1], 16, 32)
	slot, _ := strconv.ParseInt(m[2], 16, 32)
	fn, _ := strconv.ParseInt(m[3], 16, 32)
	if bus > 0xff || slot > 0x1f || fn > 7 {
		return PciAddress{}, rocerr.New(rocerr.BadParameter, "PCI address %q out of range", s)
	}
	return PciAddress{Bus: int(bus), Slot: int(slot), Function: int(fn)}, nil
}

var sequenceRE = regexp.MustCompile(`^#[0-9]+$`)

// CardID names a card by one of its three identifier forms.
type CardID struct {
	Kind       CardIDKind
	Serial     int
	Address    PciAddress
	Sequence   int
	raw        string
}

func (c CardID) String() string {
	return c.raw
}

// ParseCardID resolves a card-identifier string: a decimal serial number, a
// "bus:slot.function" PCI address, or "#N" for the N-th discovered device.
func ParseCardID(s string) (CardID, error) {
	s = strings.TrimSpace(s)
	switch {
	case sequenceRE.MatchString(s):
		n, err := strconv.Atoi(s[1:])
		if err != nil {
			return CardID{}, rocerr.New(rocerr.BadParameter, "malformed sequence identifier %q", s)
		}
		return CardID{Kind: BySequence, Sequence: n, raw: s}, nil
	case strings.Contains(s, ":"):
		addr, err := ParsePciAddress(s)
		if err != nil {
			return CardID{}, err
		}
		return CardID{Kind: ByPciAddress, Address: addr, raw: s}, nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return CardID{}, rocerr.New(rocerr.BadParameter, "malformed card identifier %q", s)
		}
		return CardID{Kind: BySerial, Serial: n, raw: s}, nil
	}
}
