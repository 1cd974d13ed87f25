package engine

import (
	"testing"

	"github.com/readoutcard/rocdma/rocerr"
)

// TestParseArrivalStatus pins the status-word encoding: -1 not arrived,
// 0 partial, low byte 0x82 whole, error bit or anything else an arrival
// error.
func TestParseArrivalStatus(t *testing.T) {
	data := []struct {
		name   string
		status uint32
		length uint32
		kind   arrivalKind
	}{
		{"not arrived", 0xFFFFFFFF, 0, notArrived},
		{"partial", 0, 0, partial},
		{"whole", 0x00000082, 2048, whole},
		{"error bit set", 0x80000082, 0, arrivalErr},
		{"unrecognised low byte", 0x00000001, 0, arrivalErr},
	}
	for _, d := range data {
		kind, length, err := parseArrivalStatus(int32(d.status), d.length)
		if kind != d.kind {
			t.Errorf("%s: kind = %v, want %v", d.name, kind, d.kind)
		}
		if d.kind == arrivalErr {
			if !rocerr.Is(err, rocerr.ArrivalError) {
				t.Errorf("%s: error = %v, want ArrivalError", d.name, err)
			}
		} else if err != nil {
			t.Errorf("%s: unexpected error %v", d.name, err)
		}
		if d.kind == whole && length != d.length {
			t.Errorf("%s: length = %d, want %d", d.name, length, d.length)
		}
	}
}
