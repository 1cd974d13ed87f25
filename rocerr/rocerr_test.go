package rocerr

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	data := []struct {
		err  *Error
		want string
	}{
		{New(CardNotFound, "no device matches %q", "#3"), "rocdma: CardNotFound: no device matches \"#3\""},
		{New(BadState, "resetChannel invalid").With("state", "Started"), "state=Started"},
	}
	for _, line := range data {
		if !strings.Contains(line.err.Error(), line.want) {
			t.Errorf("%#v.Error() = %q, want substring %q", line.err, line.err.Error(), line.want)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("flock failed")
	err := Wrap(cause, FileLocked, "channel 0")
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	if !Is(err, FileLocked) {
		t.Errorf("Is(err, FileLocked) = false, want true")
	}
	if Is(err, BadState) {
		t.Errorf("Is(err, BadState) = true, want false")
	}
}

func TestKindString(t *testing.T) {
	if Kind(999).String() != "Unknown" {
		t.Errorf("unknown kind did not stringify to Unknown")
	}
}
