package game

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// playWhack runs a whack match that hits the first non-bomb mole every 50ms.
func playWhack(t *testing.T, seed int64) *Match {
	t.Helper()
	var completed int
	m, err := NewMatch(DefaultRegistry(), "m-whack", "u1", WhackAMoleID, seed, ModePractice, func(int) { completed++ })
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	m.Start()
	for !m.Done() && m.Now() < 2*time.Minute {
		m.Advance(50 * time.Millisecond)
		detail, ok := m.Snapshot().Detail.(WhackDetail)
		if !ok {
			continue
		}
		for cell, mole := range detail.Cells {
			if mole != nil && mole.Type != MoleBomb {
				if _, err := m.Apply(Action{Kind: ActionWhack, Target: cell}); err != nil {
					t.Fatalf("Apply: %v", err)
				}
				break
			}
		}
	}
	if completed != 1 {
		t.Fatalf("completion callback ran %d times", completed)
	}
	return m
}

// playRace runs a race that answers every prompt and taps early once.
func playRace(t *testing.T, seed int64) *Match {
	t.Helper()
	m, err := NewMatch(DefaultRegistry(), "m-race", "u1", TurboRaceID, seed, ModeTournament, nil)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	m.Start()
	m.Advance(countdown + time.Second)
	m.Apply(Action{Kind: ActionBoost})
	for !m.Done() && m.Now() < 2*time.Minute {
		m.Advance(16 * time.Millisecond)
		if d, ok := m.Snapshot().Detail.(RaceDetail); ok && d.Boost == BoostPrompt {
			m.Apply(Action{Kind: ActionBoost})
		}
	}
	return m
}

// TestReplayReproducesScore verifies a recording replays to the live score
func TestReplayReproducesScore(t *testing.T) {
	tests := []struct {
		name string
		play func(*testing.T, int64) *Match
	}{
		{"whack", playWhack},
		{"race", playRace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.play(t, 31337)
			rec := m.Recording()
			if !rec.Done || len(rec.Inputs) == 0 {
				t.Fatalf("recording done=%v inputs=%d", rec.Done, len(rec.Inputs))
			}
			if rec.Score != m.Score() {
				t.Fatalf("recorded score %d, engine %d", rec.Score, m.Score())
			}

			score, err := Replay(DefaultRegistry(), rec)
			if err != nil {
				t.Fatalf("Replay: %v", err)
			}
			if score != rec.Score {
				t.Errorf("replayed %d, recorded %d", score, rec.Score)
			}

			ok, _, err := Verify(DefaultRegistry(), rec)
			if err != nil || !ok {
				t.Errorf("Verify = %v, %v", ok, err)
			}

			rec.Score++
			if ok, _, _ := Verify(DefaultRegistry(), rec); ok {
				t.Error("tampered score verified")
			}
		})
	}
}

// frameStep mimics a wall-clock frame: 16ms plus a sub-millisecond jitter
// that differs per seed.
func frameStep(seed int64) time.Duration {
	return 16*time.Millisecond + time.Duration(seed*7919%1000)*time.Microsecond
}

// playRaceFrames answers every boost prompt while advancing in jittered frames.
func playRaceFrames(t *testing.T, seed int64) *Match {
	t.Helper()
	m, err := NewMatch(DefaultRegistry(), "m-race", "u1", TurboRaceID, seed, ModePractice, nil)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	m.Start()
	step := frameStep(seed)
	for !m.Done() && m.Now() < 2*time.Minute {
		m.Advance(step)
		if d, ok := m.Snapshot().Detail.(RaceDetail); ok && d.Boost == BoostPrompt {
			m.Apply(Action{Kind: ActionBoost})
		}
	}
	return m
}

// playMemoryFrames taps the correct next tile once per jittered frame.
func playMemoryFrames(t *testing.T, seed int64) *Match {
	t.Helper()
	m, err := NewMatch(DefaultRegistry(), "m-memory", "u1", MemoryPathID, seed, ModePractice, nil)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	g := m.engine.(*MemoryPath)
	m.Start()
	step := frameStep(seed)
	for !m.Done() && m.Now() < 3*time.Minute {
		m.Advance(step)
		if g.phase == MemoryInput && len(g.clicks) < len(g.path) {
			m.Apply(Action{Kind: ActionTap, Target: g.path[len(g.clicks)]})
		}
	}
	return m
}

// TestReplayWithFractionalFrames verifies matches driven by sub-millisecond
// frame deltas still replay to their recorded score.
func TestReplayWithFractionalFrames(t *testing.T) {
	tests := []struct {
		name string
		play func(*testing.T, int64) *Match
	}{
		{"race", playRaceFrames},
		{"memory", playMemoryFrames},
	}

	reg := DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := int64(1); seed <= 40; seed++ {
				m := tt.play(t, seed)
				if m.Now()%time.Millisecond != 0 {
					t.Fatalf("seed %d: virtual time %v is off the millisecond grid", seed, m.Now())
				}
				rec := m.Recording()
				if !rec.Done || len(rec.Inputs) == 0 {
					t.Fatalf("seed %d: done=%v inputs=%d", seed, rec.Done, len(rec.Inputs))
				}
				ok, replayed, err := Verify(reg, rec)
				if err != nil || !ok {
					t.Errorf("seed %d: live %d, replayed %d (%v)", seed, rec.Score, replayed, err)
				}
			}
		})
	}
}

func TestMatchAdvanceCarriesRemainder(t *testing.T) {
	m, err := NewMatch(DefaultRegistry(), "m1", "u1", WhackAMoleID, 1, ModePractice, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		m.Advance(250 * time.Microsecond)
	}
	if m.Now() != time.Millisecond {
		t.Errorf("Now = %v after 4 x 250us, want 1ms", m.Now())
	}
	m.Advance(16*time.Millisecond + 600*time.Microsecond)
	m.Advance(400 * time.Microsecond)
	if m.Now() != 18*time.Millisecond {
		t.Errorf("Now = %v, want 18ms", m.Now())
	}
}

func TestMatchRejectsInputAfterEnd(t *testing.T) {
	m := playWhack(t, 5)
	before := len(m.Recording().Inputs)

	ok, err := m.Apply(Action{Kind: ActionWhack, Target: 0})
	if ok || !errors.Is(err, ErrMatchOver) {
		t.Errorf("Apply after end = %v, %v", ok, err)
	}
	if len(m.Recording().Inputs) != before {
		t.Error("input recorded after end")
	}
}

func TestMatchRecordsOnlyAcceptedInputs(t *testing.T) {
	m, err := NewMatch(DefaultRegistry(), "m1", "u1", MemoryPathID, 1, ModePractice, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Start()
	m.Apply(Action{Kind: ActionTap, Target: 3})
	m.Advance(countdown)
	m.Apply(Action{Kind: ActionTap, Target: 3})

	if n := len(m.Recording().Inputs); n != 0 {
		t.Errorf("recorded %d rejected inputs", n)
	}
}

func TestReplayErrors(t *testing.T) {
	reg := DefaultRegistry()

	_, err := Replay(reg, Recording{Game: "pinball"})
	if !errors.Is(err, ErrUnknownGame) {
		t.Errorf("unknown game err = %v", err)
	}

	_, err = Replay(reg, Recording{Game: WhackAMoleID, Inputs: []RecordedInput{
		{AtMs: 3000, Action: Action{Kind: ActionWhack}},
		{AtMs: 2900, Action: Action{Kind: ActionWhack}},
	}})
	if err == nil {
		t.Error("out of order inputs accepted")
	}

	if _, err := NewMatch(reg, "m", "u", "pinball", 1, ModePractice, nil); !errors.Is(err, ErrUnknownGame) {
		t.Errorf("NewMatch unknown game err = %v", err)
	}
}

type bufCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufCloser) Close() error {
	b.closed = true
	return nil
}

// TestAuditLogRecordings verifies completed matches written to the audit log
// can be read back and verified
func TestAuditLogRecordings(t *testing.T) {
	m := playWhack(t, 77)
	rec := m.Recording()

	out := &bufCloser{}
	al := NewAuditLog()
	al.StartWriter(out)
	if !al.Record(EventTypeMatchStarted, rec.MatchID, rec.UserID, MatchStartedPayload{Game: rec.Game, Seed: rec.Seed, Mode: rec.Mode}) {
		t.Fatal("match started event dropped")
	}
	if !al.Record(EventTypeMatchCompleted, rec.MatchID, rec.UserID, rec) {
		t.Fatal("match completed event dropped")
	}
	al.Stop()

	if !out.closed {
		t.Error("sink not closed on Stop")
	}
	if al.Emit(NewEvent(EventTypeDeposit, "", "u1", nil)) {
		t.Error("emit accepted after Stop")
	}

	recs, err := ReadRecordings(&out.Buffer)
	if err != nil {
		t.Fatalf("ReadRecordings: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recordings, want 1", len(recs))
	}
	ok, score, err := Verify(DefaultRegistry(), recs[0])
	if err != nil || !ok {
		t.Errorf("Verify = %v (%d vs %d), %v", ok, score, rec.Score, err)
	}
}

func TestAuditLogUserLimit(t *testing.T) {
	al := NewAuditLog()
	al.StartWriter(&bufCloser{})
	defer al.Stop()

	accepted := 0
	for i := 0; i < MaxAuditPerUser; i++ {
		if al.Record(EventTypeDeposit, "", "spammer", nil) {
			accepted++
		}
	}
	if accepted < MaxAuditPerUser/5 || accepted >= MaxAuditPerUser {
		t.Errorf("accepted %d of %d burst events", accepted, MaxAuditPerUser)
	}
	if !al.Record(EventTypeDeposit, "", "someone-else", nil) {
		t.Error("other user limited")
	}
	if stats := al.Stats(); stats["dropped"].(uint64) == 0 {
		t.Error("drops not counted")
	}
}

func TestDriverApplyAndStop(t *testing.T) {
	m, err := NewMatch(DefaultRegistry(), "m-drv", "u1", OrbBurstID, 9, ModePractice, nil)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDriver(m, 5*time.Millisecond, 2)
	published := make(chan Snapshot, 64)
	d.OnSnapshot = func(s Snapshot) {
		select {
		case published <- s:
		default:
		}
	}

	d.Start()
	d.Start()
	select {
	case snap := <-published:
		if snap.Game != OrbBurstID {
			t.Errorf("snapshot game = %s", snap.Game)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}

	if ok, err := d.Apply(Action{Kind: ActionPop, Target: 0}); ok || err != nil {
		t.Errorf("pop during countdown = %v, %v", ok, err)
	}
	d.Stop()
	d.Stop()
	if d.Done() {
		t.Error("match done after a few frames")
	}
	if d.Snapshot().Phase != "countdown" {
		t.Errorf("phase = %s", d.Snapshot().Phase)
	}
}
