package params

import (
	"testing"

	"github.com/readoutcard/rocdma/rocerr"
)

func TestParseCardID(t *testing.T) {
	data := []struct {
		in      string
		wantErr bool
		kind    CardIDKind
	}{
		{"42", false, BySerial},
		{"#3", false, BySequence},
		{"00:1f.7", false, ByPciAddress},
		{"ff:1f.7", false, ByPciAddress},
		{"100:00.0", true, 0},
		{"#x", true, 0},
		{"not-a-card", true, 0},
	}
	for _, line := range data {
		id, err := ParseCardID(line.in)
		if (err != nil) != line.wantErr {
			t.Errorf("ParseCardID(%q) error = %v, wantErr %v", line.in, err, line.wantErr)
			continue
		}
		if err == nil && id.Kind != line.kind {
			t.Errorf("ParseCardID(%q).Kind = %v, want %v", line.in, id.Kind, line.kind)
		}
		if err != nil && !rocerr.Is(err, rocerr.BadParameter) {
			t.Errorf("ParseCardID(%q) error kind = %v, want BadParameter", line.in, err)
		}
	}
}

func TestPciAddressString(t *testing.T) {
	addr, err := ParsePciAddress("3:1f.2")
	if err != nil {
		t.Fatalf("ParsePciAddress: %v", err)
	}
	if got, want := addr.String(), "03:1f.2"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParametersValidateDefaults(t *testing.T) {
	p := Parameters{
		CardID:        CardID{Kind: BySequence, Sequence: 0},
		ChannelNumber: 0,
		Buffer:        BufferParameters{Kind: BufferMemory, MemorySize: 16 << 20},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.DmaPageSize != DefaultDmaPageSize {
		t.Errorf("DmaPageSize = %d, want default %d", p.DmaPageSize, DefaultDmaPageSize)
	}
}

func TestParametersValidateRejectsNoBuffer(t *testing.T) {
	p := Parameters{CardID: CardID{Kind: BySequence}, ChannelNumber: 0}
	if err := p.Validate(); !rocerr.Is(err, rocerr.BadParameter) {
		t.Errorf("Validate() = %v, want BadParameter", err)
	}
}

func TestParseLoopbackMode(t *testing.T) {
	data := []struct {
		in   string
		want LoopbackMode
	}{
		{"", LoopbackNone},
		{"Internal", LoopbackInternal},
		{"SIU", LoopbackSiu},
	}
	for _, line := range data {
		got, err := ParseLoopbackMode(line.in)
		if err != nil {
			t.Errorf("ParseLoopbackMode(%q): %v", line.in, err)
			continue
		}
		if got != line.want {
			t.Errorf("ParseLoopbackMode(%q) = %v, want %v", line.in, got, line.want)
		}
	}
	if _, err := ParseLoopbackMode("bogus"); !rocerr.Is(err, rocerr.BadParameter) {
		t.Errorf("ParseLoopbackMode(bogus) = %v, want BadParameter", err)
	}
}
