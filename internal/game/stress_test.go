package game

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// STRESS TEST SUITE: MANY LIVE MATCHES
// Run with: go test -v -run=TestStress -timeout=60s ./internal/game/...
// =============================================================================

// -----------------------------------------------------------------------------
// STRESS TEST: CONCURRENT INPUTS
// -----------------------------------------------------------------------------

func TestStress_ConcurrentInputs(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	reg := DefaultRegistry()
	games := reg.List()
	actions := []ActionKind{ActionWhack, ActionLock, ActionPop, ActionTap, ActionBoost}

	const matches = 40
	drivers := make([]*Driver, 0, matches)
	var published int64
	for i := 0; i < matches; i++ {
		info := games[i%len(games)].Info
		m, err := NewMatch(reg, fmt.Sprintf("stress-%d", i), fmt.Sprintf("user-%d", i), info.ID, int64(i), ModePractice, nil)
		if err != nil {
			t.Fatal(err)
		}
		d := NewDriver(m, 5*time.Millisecond, 4)
		d.OnSnapshot = func(Snapshot) { atomic.AddInt64(&published, 1) }
		d.Start()
		drivers = append(drivers, d)
	}

	var wg sync.WaitGroup
	var accepted, rejected int64
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(worker)))
			for i := 0; i < 300; i++ {
				d := drivers[r.Intn(len(drivers))]
				ok, err := d.Apply(Action{Kind: actions[r.Intn(len(actions))], Target: r.Intn(25)})
				if err != nil {
					t.Errorf("apply: %v", err)
					return
				}
				if ok {
					atomic.AddInt64(&accepted, 1)
				} else {
					atomic.AddInt64(&rejected, 1)
				}
				_ = d.Snapshot()
				time.Sleep(time.Millisecond)
			}
		}(w)
	}
	wg.Wait()

	for _, d := range drivers {
		d.Stop()
	}

	t.Logf("Concurrent Inputs Test:")
	t.Logf("  Accepted: %d", accepted)
	t.Logf("  Rejected: %d", rejected)
	t.Logf("  Snapshots Published: %d", published)

	if published == 0 {
		t.Error("no snapshots published under load")
	}
	for _, d := range drivers {
		rec := d.Recording()
		for i := 1; i < len(rec.Inputs); i++ {
			if rec.Inputs[i].AtMs < rec.Inputs[i-1].AtMs {
				t.Fatalf("%s: inputs recorded out of order", rec.MatchID)
			}
		}
	}
}
