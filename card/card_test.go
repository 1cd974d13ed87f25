package card

import (
	"testing"

	"github.com/readoutcard/rocdma/host/pmem"
	"github.com/readoutcard/rocdma/rocerr"
)

func fakeBAR(words int) *BAR {
	view := &pmem.View{Slice: make(pmem.Slice, words*4)}
	return NewBAR(view)
}

func TestBARReadWrite(t *testing.T) {
	b := fakeBAR(16)
	b.Write32(serialNumberIndex%16, 0xdeadbeef)
	if got := b.Read32(serialNumberIndex % 16); got != 0xdeadbeef {
		t.Errorf("Read32 = 0x%x, want 0xdeadbeef", got)
	}
}

func TestByteOffsetToIndex(t *testing.T) {
	if got := ByteOffsetToIndex(0x234); got != 0x8d {
		t.Errorf("ByteOffsetToIndex(0x234) = 0x%x, want 0x8d", got)
	}
}

func TestDecodeTemperature(t *testing.T) {
	data := []struct {
		raw     uint32
		wantErr bool
		want    float64
	}{
		{0, true, 0},
		{1024, true, 0},
		{512, false, 81.5},
	}
	for _, line := range data {
		got, err := decodeTemperature(line.raw)
		if (err != nil) != line.wantErr {
			t.Errorf("decodeTemperature(%d) error = %v, wantErr %v", line.raw, err, line.wantErr)
			continue
		}
		if err != nil {
			if !rocerr.Is(err, rocerr.Unavailable) {
				t.Errorf("decodeTemperature(%d) error kind = %v, want Unavailable", line.raw, err)
			}
			continue
		}
		if diff := got - line.want; diff > 0.01 || diff < -0.01 {
			t.Errorf("decodeTemperature(%d) = %v, want %v", line.raw, got, line.want)
		}
	}
}

func TestDecodeFirmwareInfo(t *testing.T) {
	// major=3, minor=5, year offset=1 (2001), month=8, day=15.
	raw := uint32(firmwareReservedExpect) | 3<<20 | 5<<13 | 1<<9 | 8<<5 | 15
	info, err := decodeFirmwareInfo(raw)
	if err != nil {
		t.Fatalf("decodeFirmwareInfo: %v", err)
	}
	want := FirmwareInfo{Major: 3, Minor: 5, Year: 2001, Month: 8, Day: 15}
	if info != want {
		t.Errorf("decodeFirmwareInfo(0x%x) = %+v, want %+v", raw, info, want)
	}

	if _, err := decodeFirmwareInfo(0xff000000); !rocerr.Is(err, rocerr.FirmwareMagicMismatch) {
		t.Errorf("decodeFirmwareInfo(bad reserved) error = %v, want FirmwareMagicMismatch", err)
	}
}
