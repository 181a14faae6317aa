package clock

import "time"

// Phase is the lifecycle stage of a timed round.
type Phase uint8

const (
	PhaseCountdown Phase = iota
	PhasePlaying
	PhaseEnded
)

// String returns the phase name used in snapshots
func (p Phase) String() string {
	switch p {
	case PhaseCountdown:
		return "countdown"
	case PhasePlaying:
		return "playing"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Default timings shared by every game.
const (
	DefaultCountdownTicks = 3
	DefaultCountdownStep  = 800 * time.Millisecond
	DefaultSettleDelay    = 1500 * time.Millisecond
	FrameTick             = 16 * time.Millisecond
)

// RoundConfig describes one round's timing. A zero Duration makes the round
// open-ended; it then ends only through Finish.
type RoundConfig struct {
	CountdownTicks int
	CountdownStep  time.Duration
	Duration       time.Duration
	Tick           time.Duration
	SettleDelay    time.Duration
}

// Hooks are the engine callbacks a RoundClock drives. Any may be nil.
type Hooks struct {
	// OnStart runs once when play begins.
	OnStart func()
	// OnTick runs on every playing tick while time remains.
	OnTick func()
	// OnEnd runs once on the ended transition, after pending timers are cleared.
	OnEnd func()
	// OnSettled runs once, SettleDelay after the round ended.
	OnSettled func()
}

// RoundClock runs countdown -> playing -> ended on a Scheduler.
type RoundClock struct {
	sched     *Scheduler
	cfg       RoundConfig
	hooks     Hooks
	phase     Phase
	countdown int
	startedAt time.Duration
	endedAt   time.Duration
	remaining int
	started   bool
	settled   bool
}

// NewRoundClock creates a clock in the countdown phase. Call Start to run it.
func NewRoundClock(s *Scheduler, cfg RoundConfig, hooks Hooks) *RoundClock {
	if cfg.CountdownStep <= 0 {
		cfg.CountdownStep = DefaultCountdownStep
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	return &RoundClock{
		sched:     s,
		cfg:       cfg,
		hooks:     hooks,
		phase:     PhaseCountdown,
		countdown: cfg.CountdownTicks,
		remaining: ceilSeconds(cfg.Duration),
	}
}

// Start begins the countdown. Calling it twice has no effect.
func (c *RoundClock) Start() {
	if c.started {
		return
	}
	c.started = true
	if c.countdown <= 0 {
		c.beginPlaying()
		return
	}
	c.sched.After(c.cfg.CountdownStep, c.countdownStep)
}

func (c *RoundClock) countdownStep() {
	c.countdown--
	if c.countdown > 0 {
		c.sched.After(c.cfg.CountdownStep, c.countdownStep)
		return
	}
	c.beginPlaying()
}

func (c *RoundClock) beginPlaying() {
	c.phase = PhasePlaying
	c.startedAt = c.sched.Now()
	c.sched.Every(c.cfg.Tick, c.tick)
	if c.hooks.OnStart != nil {
		c.hooks.OnStart()
	}
}

func (c *RoundClock) tick() {
	if c.phase != PhasePlaying {
		return
	}
	if c.cfg.Duration > 0 {
		c.remaining = ceilSeconds(c.cfg.Duration - c.Elapsed())
		if c.remaining == 0 {
			c.end()
			return
		}
	}
	if c.hooks.OnTick != nil {
		c.hooks.OnTick()
	}
}

// Finish ends the round immediately. Used by open-ended rounds.
func (c *RoundClock) Finish() {
	if c.phase == PhaseEnded {
		return
	}
	c.end()
}

func (c *RoundClock) end() {
	c.phase = PhaseEnded
	c.endedAt = c.sched.Now()
	c.sched.CancelAll()
	if c.hooks.OnEnd != nil {
		c.hooks.OnEnd()
	}
	c.sched.After(c.cfg.SettleDelay, func() {
		if c.settled {
			return
		}
		c.settled = true
		if c.hooks.OnSettled != nil {
			c.hooks.OnSettled()
		}
	})
}

// Phase returns the current phase.
func (c *RoundClock) Phase() Phase { return c.phase }

// Playing reports whether the round accepts play.
func (c *RoundClock) Playing() bool { return c.phase == PhasePlaying }

// Countdown returns the visible countdown value.
func (c *RoundClock) Countdown() int { return c.countdown }

// Settled reports whether the completion callback has run.
func (c *RoundClock) Settled() bool { return c.settled }

// Elapsed returns playing time so far; zero during countdown, frozen once ended.
func (c *RoundClock) Elapsed() time.Duration {
	switch c.phase {
	case PhaseCountdown:
		return 0
	case PhaseEnded:
		return c.endedAt - c.startedAt
	}
	return c.sched.Now() - c.startedAt
}

// Remaining returns whole seconds left as of the last tick.
func (c *RoundClock) Remaining() int {
	if c.phase == PhaseEnded {
		return 0
	}
	return c.remaining
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
