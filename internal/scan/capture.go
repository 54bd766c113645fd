package scan

import (
	"time"
	"unicode/utf8"
)

const (
	StateIdle         = "idle"
	StateAccumulating = "accumulating"
)

const (
	ScopeGlobal = "global"
	ScopeTarget = "target"
)

const KeyEnter = "Enter"

type Config struct {
	// DecayWindow is how long the buffer survives after the last key
	// before it is flushed as a token (or discarded when too short).
	DecayWindow time.Duration
	// MinLength is the smallest buffer, in characters, treated as a scan.
	MinLength int
	// Cooldown suppresses a second emission right after the first; a
	// token produced inside the window is dropped, not queued.
	Cooldown time.Duration
	// Scope selects ScopeGlobal (any keyboard focus) or ScopeTarget
	// (only events whose Target equals TargetID).
	Scope    string
	TargetID string
	// Now is the clock; tests inject a fake.
	Now func() time.Time
}

type KeyEvent struct {
	Key    string
	Target string
}

type Result struct {
	Token       string
	Emitted     bool
	SuppressKey bool
}

// Capture rebuilds discrete scan tokens from a raw keystroke stream.
// Printable keys accumulate; Enter or decay finalizes the buffer. Not safe
// for concurrent use; the owner serializes access.
type Capture struct {
	cfg        Config
	buf        []rune
	state      string
	deadline   time.Time
	lastEmitAt time.Time
}

func New(cfg Config) *Capture {
	if cfg.DecayWindow <= 0 {
		cfg.DecayWindow = 150 * time.Millisecond
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 6
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 400 * time.Millisecond
	}
	if cfg.Scope == "" {
		cfg.Scope = ScopeGlobal
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Capture{cfg: cfg, state: StateIdle}
}

func (c *Capture) State() string { return c.state }

// Press feeds one keyboard event through the machine. At most one token is
// emitted per call. SuppressKey reports that the caller must swallow the
// key so it cannot reach a focused control.
func (c *Capture) Press(ev KeyEvent) Result {
	if c.cfg.Scope == ScopeTarget && ev.Target != c.cfg.TargetID {
		return Result{}
	}

	now := c.cfg.Now()
	res := c.flushExpired(now)

	switch {
	case ev.Key == KeyEnter:
		if c.state != StateAccumulating {
			return res
		}
		res.SuppressKey = len(c.buf) >= c.cfg.MinLength
		if token, ok := c.finish(now); ok {
			res.Token = token
			res.Emitted = true
		}
	case isPrintable(ev.Key):
		c.buf = append(c.buf, []rune(ev.Key)...)
		c.state = StateAccumulating
		c.deadline = now.Add(c.cfg.DecayWindow)
	}

	return res
}

// FlushDue finalizes the buffer once the decay deadline has passed.
// Hosts call it from the timer armed for Deadline; scanners that never
// send Enter emit through this path.
func (c *Capture) FlushDue() Result {
	return c.flushExpired(c.cfg.Now())
}

// Deadline reports when the current buffer decays; ok is false while idle.
func (c *Capture) Deadline() (time.Time, bool) {
	if c.state != StateAccumulating {
		return time.Time{}, false
	}
	return c.deadline, true
}

// flushExpired treats an elapsed deadline as the timer tick the host never
// delivered, so a stale buffer cannot bleed into the next scan.
func (c *Capture) flushExpired(now time.Time) Result {
	if c.state != StateAccumulating || now.Before(c.deadline) {
		return Result{}
	}
	token, ok := c.finish(now)
	return Result{Token: token, Emitted: ok}
}

func (c *Capture) finish(now time.Time) (string, bool) {
	token := string(c.buf)
	short := len(c.buf) < c.cfg.MinLength
	c.buf = c.buf[:0]
	c.state = StateIdle
	c.deadline = time.Time{}

	if short {
		return "", false
	}
	if !c.lastEmitAt.IsZero() && now.Sub(c.lastEmitAt) < c.cfg.Cooldown {
		return "", false
	}
	c.lastEmitAt = now
	return token, true
}

func isPrintable(key string) bool {
	return utf8.RuneCountInString(key) == 1
}
