// Package syspci enumerates PCIe devices through the Linux sysfs tree,
// the way host/sysfs walked /sys/class/gpio: read a handful of small text
// files per device directory and turn them into typed values.
package syspci

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/readoutcard/rocdma/params"
	"github.com/readoutcard/rocdma/rocerr"
)

// Root is the sysfs PCI device tree root. It is a variable, not a
// constant, so tests can point it at a fake tree.
var Root = "/sys/bus/pci/devices"

// vendorID is the PCI vendor ID shared by both supported card families.
const vendorID = 0x10dc

// deviceID identifies which card family a device ID belongs to.
var deviceID = map[int64]params.CardFamily{
	0x0033: params.FamilyA,
	0x0035: params.FamilyB,
}

// Descriptor is one discovered card.
type Descriptor struct {
	Family   params.CardFamily
	Address  params.PciAddress
	NumaNode int
	Sequence int

	sysfsPath string
}

// ResourcePath returns the path to the BAR n resource file for this
// device (e.g. .../0000:03:00.0/resource0).
func (d Descriptor) ResourcePath(bar int) string {
	return filepath.Join(d.sysfsPath, fmt.Sprintf("resource%d", bar))
}

// FindCards enumerates every PCI device under Root whose vendor/device ID
// pair matches a known card family, in directory-scan order, and assigns
// each a 0-based discovery sequence number.
func FindCards() ([]Descriptor, error) {
	entries, err := os.ReadDir(Root)
	if err != nil {
		return nil, rocerr.Wrap(err, rocerr.CardNotFound, "reading %s", Root)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var cards []Descriptor
	for _, name := range names {
		dir := filepath.Join(Root, name)
		vendor, err := readHexFile(filepath.Join(dir, "vendor"))
		if err != nil || vendor != vendorID {
			continue
		}
		device, err := readHexFile(filepath.Join(dir, "device"))
		if err != nil {
			continue
		}
		family, ok := deviceID[device]
		if !ok {
			continue
		}
		addr, err := parseSysfsAddress(name)
		if err != nil {
			continue
		}
		numa, _ := readIntFile(filepath.Join(dir, "numa_node"))
		if numa < 0 {
			numa = 0 // sysfs reports -1 for single-NUMA-node systems.
		}
		cards = append(cards, Descriptor{
			Family:    family,
			Address:   addr,
			NumaNode:  numa,
			Sequence:  len(cards),
			sysfsPath: dir,
		})
	}
	return cards, nil
}

// FindCard resolves a card identifier against the current set of
// discovered cards. Serial-based resolution is not handled here: the
// serial number lives in a BAR register, not in sysfs, so the card
// package matches on serial after mapping each candidate's BAR.
func FindCard(id params.CardID, cards []Descriptor) (Descriptor, error) {
	switch id.Kind {
	case params.BySequence:
		if id.Sequence < 0 || id.Sequence >= len(cards) {
			return Descriptor{}, rocerr.New(rocerr.CardNotFound, "no card at sequence #%d (%d discovered)", id.Sequence, len(cards))
		}
		return cards[id.Sequence], nil
	case params.ByPciAddress:
		for _, c := range cards {
			if c.Address == id.Address {
				return c, nil
			}
		}
		return Descriptor{}, rocerr.New(rocerr.CardNotFound, "no card at PCI address %s", id.Address)
	default:
		return Descriptor{}, rocerr.New(rocerr.CardNotFound, "card identifier %s requires serial matching, not available from sysfs alone", id)
	}
}

// parseSysfsAddress parses the sysfs device directory name, e.g.
// "0000:03:00.1", discarding the PCI domain (not modelled by CardID).
func parseSysfsAddress(name string) (params.PciAddress, error) {
	parts := strings.SplitN(name, ":", 3)
	if len(parts) != 3 {
		return params.PciAddress{}, rocerr.New(rocerr.BadParameter, "malformed sysfs PCI directory name %q", name)
	}
	return params.ParsePciAddress(parts[1] + ":" + parts[2])
}

func readHexFile(path string) (int64, error) {
	s, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
}

func readIntFile(path string) (int, error) {
	s, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
