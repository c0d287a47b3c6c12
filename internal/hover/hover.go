// Package hover implements the debounced hover state machine of the hit layer.
//
// Each feature moves Idle -> Pending on pointer enter, Pending -> Shown when
// the debounce timer fires, and back to Idle on pointer leave. Leaving while
// Pending cancels the timer so no stale popup opens. The popup anchor is the
// pointer position clamped into the container minus a fixed padding.
package hover

import (
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Defaults for the debounce delay and popup inset.
const (
	DefaultDelay   = 50 * time.Millisecond
	DefaultPadding = 40.0
)

var (
	popupsShown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roadrisk_hover_popups_shown_total",
		Help: "Popups opened after the hover debounce elapsed",
	})
	hoversCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roadrisk_hover_cancelled_total",
		Help: "Hovers that left before the debounce elapsed",
	})
)

// State is the hover state of one feature.
type State int

const (
	Idle State = iota
	Pending
	Shown
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Shown:
		return "shown"
	default:
		return "idle"
	}
}

// Host is the map host as seen by the hover controller.
type Host interface {
	ContainerSize() (w, h float64)
	GeoToScreen(p orb.Point) orb.Point
	ScreenToGeo(p orb.Point) orb.Point
	OpenPopup(featureID string, anchor orb.Point, content string)
	ClosePopup(featureID string)
}

// ContentFunc returns the prepared popup content for a feature id.
type ContentFunc func(featureID string) (string, bool)

// Config configures a Controller.
type Config struct {
	Delay   time.Duration
	Padding float64
	Clock   Clock
	Logger  *slog.Logger
}

type session struct {
	state   State
	pointer orb.Point
	timer   Timer
}

// Controller tracks hover sessions for the hit layer. It is safe for
// concurrent use; timer callbacks run on the clock's goroutine.
type Controller struct {
	mu       sync.Mutex
	host     Host
	content  ContentFunc
	delay    time.Duration
	padding  float64
	clock    Clock
	log      *slog.Logger
	sessions map[string]*session
}

// New creates a hover controller.
func New(host Host, content ContentFunc, cfg Config) *Controller {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Padding < 0 {
		cfg.Padding = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		host:     host,
		content:  content,
		delay:    cfg.Delay,
		padding:  cfg.Padding,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		sessions: make(map[string]*session),
	}
}

// State returns the hover state of featureID.
func (c *Controller) State(featureID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[featureID]; ok {
		return s.state
	}
	return Idle
}

// PointerEnter starts the debounce for featureID. Repeated enters while a
// session exists only update the pointer position.
func (c *Controller) PointerEnter(featureID string, at orb.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[featureID]; ok {
		s.pointer = at
		return
	}
	s := &session{state: Pending, pointer: at}
	c.sessions[featureID] = s
	s.timer = c.clock.AfterFunc(c.delay, func() { c.fire(featureID, s) })
}

// PointerMove records the current pointer position for a hovered feature.
func (c *Controller) PointerMove(featureID string, at orb.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[featureID]; ok {
		s.pointer = at
	}
}

// PointerLeave ends the session: a pending timer is cancelled, a shown popup
// is closed.
func (c *Controller) PointerLeave(featureID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[featureID]
	if !ok {
		return
	}
	delete(c.sessions, featureID)

	switch s.state {
	case Pending:
		if s.timer != nil {
			s.timer.Stop()
		}
		hoversCancelled.Inc()
	case Shown:
		c.host.ClosePopup(featureID)
	}
}

// fire runs when the debounce elapses. A timer belonging to a session that
// has already ended is ignored.
func (c *Controller) fire(featureID string, s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.sessions[featureID]; !ok || cur != s || s.state != Pending {
		return
	}
	content := ""
	if c.content != nil {
		content, _ = c.content(featureID)
	}
	s.state = Shown
	anchor := c.anchor(s.pointer)
	c.host.OpenPopup(featureID, anchor, content)
	popupsShown.Inc()
	c.log.Debug("popup opened", "feature", featureID, "lon", anchor[0], "lat", anchor[1])
}

// anchor converts the pointer to screen space, clamps it and converts back.
func (c *Controller) anchor(pointer orb.Point) orb.Point {
	w, h := c.host.ContainerSize()
	screen := c.host.GeoToScreen(pointer)
	return c.host.ScreenToGeo(Clamp(screen, w, h, c.padding))
}

// Clamp constrains p into [padding, w-padding] x [padding, h-padding]. On an
// axis narrower than twice the padding the coordinate is centred.
func Clamp(p orb.Point, w, h, padding float64) orb.Point {
	return orb.Point{clampAxis(p[0], w, padding), clampAxis(p[1], h, padding)}
}

func clampAxis(v, size, padding float64) float64 {
	lo, hi := padding, size-padding
	if lo > hi {
		return size / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
