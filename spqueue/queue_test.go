package spqueue

import (
	"testing"

	"github.com/readoutcard/rocdma/rocerr"
)

func mustAdd(t *testing.T, q *Queue, maxPages int) int {
	t.Helper()
	id, err := q.Add(Entry{MaxPages: maxPages})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return id
}

func TestAddAndQueueFull(t *testing.T) {
	q := New(2)
	mustAdd(t, q, 1)
	mustAdd(t, q, 1)
	if _, err := q.Add(Entry{MaxPages: 1}); !rocerr.Is(err, rocerr.QueueFull) {
		t.Errorf("Add on full queue = %v, want QueueFull", err)
	}
	if q.Available() != 0 {
		t.Errorf("Available() = %d, want 0", q.Available())
	}
}

func TestLifecycle(t *testing.T) {
	q := New(4)
	id := mustAdd(t, q, 2)

	back, err := q.BackID()
	if err != nil || back != id {
		t.Fatalf("BackID() = %d, %v, want %d, nil", back, err, id)
	}
	front, err := q.FrontID()
	if err != nil || front != id {
		t.Fatalf("FrontID() = %d, %v, want %d, nil", front, err, id)
	}

	if _, err := q.RemoveFromPushing(); !rocerr.Is(err, rocerr.BadState) {
		t.Fatalf("RemoveFromPushing before fully pushed = %v, want BadState", err)
	}

	entry := q.Entry(id)
	entry.PushedPages = 2
	if _, err := q.RemoveFromPushing(); err != nil {
		t.Fatalf("RemoveFromPushing: %v", err)
	}

	if _, err := q.PromoteArrivalsToFilled(); !rocerr.Is(err, rocerr.BadState) {
		t.Fatalf("PromoteArrivalsToFilled before ready = %v, want BadState", err)
	}
	entry.Superpage.Ready = true
	if _, err := q.PromoteArrivalsToFilled(); err != nil {
		t.Fatalf("PromoteArrivalsToFilled: %v", err)
	}

	popped, err := q.PopFilled()
	if err != nil {
		t.Fatalf("PopFilled: %v", err)
	}
	if popped.MaxPages != 2 {
		t.Errorf("popped.MaxPages = %d, want 2", popped.MaxPages)
	}
	if q.Count() != 0 {
		t.Errorf("Count() after pop = %d, want 0", q.Count())
	}
	if _, err := q.PopFilled(); !rocerr.Is(err, rocerr.QueueEmpty) {
		t.Errorf("PopFilled on empty = %v, want QueueEmpty", err)
	}
}

func TestFIFOOrdering(t *testing.T) {
	q := New(4)
	ids := []int{mustAdd(t, q, 1), mustAdd(t, q, 1), mustAdd(t, q, 1)}
	for _, id := range ids {
		q.Entry(id).PushedPages = 1
		q.Entry(id).Superpage.Ready = true
	}
	for _, want := range ids {
		if _, err := q.RemoveFromPushing(); err != nil {
			t.Fatalf("RemoveFromPushing: %v", err)
		}
		got, err := q.PromoteArrivalsToFilled()
		if err != nil {
			t.Fatalf("PromoteArrivalsToFilled: %v", err)
		}
		if got != want {
			t.Errorf("PromoteArrivalsToFilled() = %d, want %d", got, want)
		}
	}
	for range ids {
		if _, err := q.PopFilled(); err != nil {
			t.Fatalf("PopFilled: %v", err)
		}
	}
}

func TestClear(t *testing.T) {
	q := New(2)
	mustAdd(t, q, 1)
	q.Clear()
	if q.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", q.Count())
	}
	if _, err := q.Add(Entry{MaxPages: 1}); err != nil {
		t.Errorf("Add after Clear: %v", err)
	}
}
