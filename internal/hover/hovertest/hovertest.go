// Package hovertest provides a manual clock and a recording map host for
// driving the hover controller deterministically.
package hovertest

import (
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-roadrisk/internal/hover"
)

// Clock is a manual hover.Clock. Callbacks run synchronously inside Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*timer
}

type timer struct {
	clock   *Clock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewClock returns a clock at time zero.
func NewClock() *Clock {
	return &Clock{}
}

// AfterFunc schedules f to run once the clock has advanced by d.
func (c *Clock) AfterFunc(d time.Duration, f func()) hover.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs every due, unstopped callback in
// deadline order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*timer
	rest := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case t.at <= c.now:
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the number of scheduled, unstopped timers.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Popup is one OpenPopup call.
type Popup struct {
	FeatureID string
	Anchor    orb.Point
	Content   string
}

// Host is a recording hover.Host with an identity projection: geographic
// coordinates are treated as screen pixels.
type Host struct {
	mu     sync.Mutex
	Width  float64
	Height float64
	Opened []Popup
	Closed []string
}

// NewHost returns a host with the given container size.
func NewHost(w, h float64) *Host {
	return &Host{Width: w, Height: h}
}

func (h *Host) ContainerSize() (float64, float64) { return h.Width, h.Height }
func (h *Host) GeoToScreen(p orb.Point) orb.Point  { return p }
func (h *Host) ScreenToGeo(p orb.Point) orb.Point  { return p }

func (h *Host) OpenPopup(id string, anchor orb.Point, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Opened = append(h.Opened, Popup{FeatureID: id, Anchor: anchor, Content: content})
}

func (h *Host) ClosePopup(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Closed = append(h.Closed, id)
}
