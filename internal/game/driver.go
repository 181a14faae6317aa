package game

import (
	"log"
	"sync"
	"time"
)

// maxFrameLag caps how much virtual time one wall-clock tick may advance,
// so a stalled process does not fast-forward a whole round.
const maxFrameLag = 250 * time.Millisecond

// Driver runs a Match against the wall clock. The ticker loop advances the
// match's virtual time by the real time elapsed (Match applies it in whole
// milliseconds); inputs are applied at the current virtual instant. All
// access is serialised by mu.
type Driver struct {
	mu       sync.Mutex
	match    *Match
	frame    time.Duration
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	running  bool
	lastTick time.Time
	frames   int64

	// OnSnapshot is called outside the lock every publishEvery frames and
	// once more when the match completes.
	OnSnapshot   func(Snapshot)
	publishEvery int64
}

// NewDriver creates a driver ticking every frame and publishing every
// publishEvery frames (minimum 1).
func NewDriver(m *Match, frame time.Duration, publishEvery int) *Driver {
	if frame <= 0 {
		frame = 16 * time.Millisecond
	}
	if publishEvery < 1 {
		publishEvery = 1
	}
	return &Driver{
		match:        m,
		frame:        frame,
		stopChan:     make(chan struct{}),
		publishEvery: int64(publishEvery),
	}
}

// Start begins the match and its loop.
func (d *Driver) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.lastTick = time.Now()
	d.match.Start()
	d.ticker = time.NewTicker(d.frame)
	ticks := d.ticker.C
	d.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticks:
				if d.tick() {
					d.Stop()
					return
				}
			case <-d.stopChan:
				return
			}
		}
	}()

	log.Printf("🎮 Match %s started (%s, seed %d)", d.match.ID(), d.match.Game(), d.match.rec.Seed)
}

// Stop halts the loop. The match keeps its state.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.running = false
		if d.ticker != nil {
			d.ticker.Stop()
		}
		d.mu.Unlock()
		close(d.stopChan)
	})
}

// tick advances the match and reports whether it finished.
func (d *Driver) tick() bool {
	d.mu.Lock()
	now := time.Now()
	delta := now.Sub(d.lastTick)
	d.lastTick = now
	if delta > maxFrameLag {
		delta = maxFrameLag
	}
	d.match.Advance(delta)
	d.frames++
	done := d.match.Done()
	publish := done || d.frames%d.publishEvery == 0
	var snap Snapshot
	if publish {
		snap = d.match.Snapshot()
	}
	d.mu.Unlock()

	if publish && d.OnSnapshot != nil {
		d.OnSnapshot(snap)
	}
	if done {
		log.Printf("🏁 Match %s finished with score %d", d.match.ID(), snap.Score)
	}
	return done
}

// Apply forwards a player input to the match.
func (d *Driver) Apply(a Action) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.match.Apply(a)
}

// Snapshot returns the current match view.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.match.Snapshot()
}

// Recording returns the match record so far.
func (d *Driver) Recording() Recording {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.match.Recording()
}

// Done reports whether the match delivered its final score.
func (d *Driver) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.match.Done()
}

// ID returns the match ID.
func (d *Driver) ID() string { return d.match.ID() }

// Game returns the game being played.
func (d *Driver) Game() ID { return d.match.Game() }
