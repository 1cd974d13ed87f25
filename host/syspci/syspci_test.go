package syspci

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/readoutcard/rocdma/params"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fakeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dev0 := filepath.Join(root, "0000:03:00.0")
	writeFile(t, filepath.Join(dev0, "vendor"), "0x10dc\n")
	writeFile(t, filepath.Join(dev0, "device"), "0x0033\n")
	writeFile(t, filepath.Join(dev0, "numa_node"), "-1\n")

	dev1 := filepath.Join(root, "0000:04:00.0")
	writeFile(t, filepath.Join(dev1, "vendor"), "0x10dc\n")
	writeFile(t, filepath.Join(dev1, "device"), "0x0035\n")
	writeFile(t, filepath.Join(dev1, "numa_node"), "1\n")

	// Unrelated device; must be skipped.
	dev2 := filepath.Join(root, "0000:05:00.0")
	writeFile(t, filepath.Join(dev2, "vendor"), "0x8086\n")
	writeFile(t, filepath.Join(dev2, "device"), "0x1521\n")
	writeFile(t, filepath.Join(dev2, "numa_node"), "0\n")
	return root
}

func TestFindCards(t *testing.T) {
	old := Root
	Root = fakeTree(t)
	defer func() { Root = old }()

	cards, err := FindCards()
	if err != nil {
		t.Fatalf("FindCards: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("len(cards) = %d, want 2", len(cards))
	}
	if cards[0].Family != params.FamilyA || cards[0].NumaNode != 0 {
		t.Errorf("cards[0] = %+v, want family A, numa 0 (normalized from -1)", cards[0])
	}
	if cards[1].Family != params.FamilyB || cards[1].NumaNode != 1 {
		t.Errorf("cards[1] = %+v, want family B, numa 1", cards[1])
	}
	if cards[0].Sequence != 0 || cards[1].Sequence != 1 {
		t.Errorf("sequence numbers = %d, %d, want 0, 1", cards[0].Sequence, cards[1].Sequence)
	}
}

func TestFindCardBySequenceAndAddress(t *testing.T) {
	old := Root
	Root = fakeTree(t)
	defer func() { Root = old }()

	cards, err := FindCards()
	if err != nil {
		t.Fatalf("FindCards: %v", err)
	}

	id, _ := params.ParseCardID("#1")
	got, err := FindCard(id, cards)
	if err != nil {
		t.Fatalf("FindCard(#1): %v", err)
	}
	if got.Family != params.FamilyB {
		t.Errorf("FindCard(#1).Family = %v, want B", got.Family)
	}

	id, _ = params.ParseCardID("03:00.0")
	got, err = FindCard(id, cards)
	if err != nil {
		t.Fatalf("FindCard(03:00.0): %v", err)
	}
	if got.Family != params.FamilyA {
		t.Errorf("FindCard(03:00.0).Family = %v, want A", got.Family)
	}

	id, _ = params.ParseCardID("#5")
	if _, err := FindCard(id, cards); err == nil {
		t.Error("FindCard(#5) on 2 cards succeeded, want error")
	}
}
