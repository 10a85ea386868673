package regorus_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dantte-lp/regorus/internal/regorus"
)

func TestRegistryFindOrCreate(t *testing.T) {
	t.Parallel()

	reg := regorus.NewRegistry(0)
	iface := newMockIface("eth0", 1)

	card, created := reg.FindOrCreate("eth0", iface)
	if !created {
		t.Fatal("first FindOrCreate: created = false, want true")
	}
	if card.Status() != regorus.StatusDetecting {
		t.Errorf("Status = %s, want Detecting", card.Status())
	}
	if card.Retries() != regorus.DefaultRetryBudget {
		t.Errorf("Retries = %d, want %d", card.Retries(), regorus.DefaultRetryBudget)
	}
	if card.Refs() != 1 {
		t.Errorf("Refs = %d, want 1", card.Refs())
	}

	again, created := reg.FindOrCreate("eth0", iface)
	if created {
		t.Error("second FindOrCreate: created = true, want false")
	}
	if again != card {
		t.Error("second FindOrCreate returned a different card")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}

// TestRegistryFindOrCreateConcurrent verifies that concurrent callers for
// one name observe the same card and exactly one creation.
func TestRegistryFindOrCreateConcurrent(t *testing.T) {
	t.Parallel()

	const workers = 64

	reg := regorus.NewRegistry(0)
	iface := newMockIface("eth0", 1)

	var (
		wg      sync.WaitGroup
		creates atomic.Int32
		cards   [workers]*regorus.Card
	)
	for i := range workers {
		wg.Go(func() {
			c, created := reg.FindOrCreate("eth0", iface)
			if created {
				creates.Add(1)
			}
			cards[i] = c
		})
	}
	wg.Wait()

	if got := creates.Load(); got != 1 {
		t.Errorf("created count = %d, want 1", got)
	}
	for i := 1; i < workers; i++ {
		if cards[i] != cards[0] {
			t.Fatalf("worker %d got a different card", i)
		}
	}
}

func TestRegistryStatusOf(t *testing.T) {
	t.Parallel()

	reg := regorus.NewRegistry(5)
	if _, ok := reg.StatusOf("eth0"); ok {
		t.Error("StatusOf on empty registry: ok = true")
	}

	card, _ := reg.FindOrCreate("eth0", newMockIface("eth0", 1))
	status, ok := reg.StatusOf("eth0")
	if !ok || status != regorus.StatusDetecting {
		t.Errorf("StatusOf = (%s, %v), want (Detecting, true)", status, ok)
	}
	if card.Retries() != 5 {
		t.Errorf("Retries = %d, want 5", card.Retries())
	}
}

func TestRegistryLookupTakesReference(t *testing.T) {
	t.Parallel()

	reg := regorus.NewRegistry(0)
	reg.FindOrCreate("eth0", newMockIface("eth0", 1))

	c, ok := reg.Lookup("eth0")
	if !ok {
		t.Fatal("Lookup: not found")
	}
	if c.Refs() != 2 {
		t.Errorf("Refs after Lookup = %d, want 2", c.Refs())
	}

	if _, ok := reg.Lookup("eth9"); ok {
		t.Error("Lookup(eth9): ok = true, want false")
	}
}

func TestRegistryCardsSorted(t *testing.T) {
	t.Parallel()

	reg := regorus.NewRegistry(0)
	for i, name := range []string{"eth2", "eth0", "eth1"} {
		reg.FindOrCreate(name, newMockIface(name, byte(i)))
	}

	cards := reg.Cards()
	want := []string{"eth0", "eth1", "eth2"}
	if len(cards) != len(want) {
		t.Fatalf("Cards len = %d, want %d", len(cards), len(want))
	}
	for i, c := range cards {
		if c.Name() != want[i] {
			t.Errorf("Cards[%d] = %s, want %s", i, c.Name(), want[i])
		}
	}
}
