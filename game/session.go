package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle position of the session.
type Phase string

const (
	Idle   Phase = "idle"
	Active Phase = "active"
)

// ErrTransitionNotAllowed is returned when the current phase has no edge for an
// operation. It is always joined with ErrGameActive or ErrNoActiveGame.
var ErrTransitionNotAllowed = errors.New("phase transition not allowed")

// Op is a lifecycle operation on the session.
type Op string

const (
	OpStart  Op = "start"
	OpUpdate Op = "update"
	OpStop   Op = "stop"
)

// transitions lists, per phase, the allowed operations and the phase each leads to.
var transitions = map[Phase]map[Op]Phase{
	Idle:   {OpStart: Active},
	Active: {OpUpdate: Active, OpStop: Idle},
}

// rejections is why a phase refuses an operation it has no edge for.
var rejections = map[Phase]error{
	Idle:   ErrNoActiveGame,
	Active: ErrGameActive,
}

// Session holds either no game (Idle) or exactly one game (Active).
type Session struct {
	phase   Phase
	current *Game
	now     func() time.Time
	newID   func() string
	mutex   sync.RWMutex
}

func NewSession() *Session {
	return &Session{
		phase: Idle,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.phase
}

// Current returns a copy of the active game, or false when Idle.
func (s *Session) Current() (Game, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.current == nil {
		return Game{}, false
	}
	return s.current.Clone(), true
}

// next returns the phase op leads to from the current one. Must be called with the
// write lock held; the caller commits the phase once the operation succeeds.
func (s *Session) next(op Op) (Phase, error) {
	to, ok := transitions[s.phase][op]
	if !ok {
		return s.phase, fmt.Errorf("%w: %s while %s: %w", rejections[s.phase], op, s.phase, ErrTransitionNotAllowed)
	}
	return to, nil
}

// Start begins a new game. It fails when a game is already active.
func (s *Session) Start(g Game) (Game, error) {
	g, err := Validate(g)
	if err != nil {
		return Game{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	to, err := s.next(OpStart)
	if err != nil {
		return Game{}, err
	}

	now := s.now().UTC()
	started := Game{
		ID:        s.newID(),
		Name:      g.Name,
		Settings:  g.Clone().Settings,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.current = &started
	s.phase = to
	return started.Clone(), nil
}

// Update replaces the settings of the active game. The name must match the active one.
func (s *Session) Update(g Game) (Game, error) {
	g, err := Validate(g)
	if err != nil {
		return Game{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	to, err := s.next(OpUpdate)
	if err != nil {
		return Game{}, err
	}
	if g.Name != s.current.Name {
		return Game{}, fmt.Errorf("%w: active %q, got %q", ErrGameMismatch, s.current.Name, g.Name)
	}

	updated := *s.current
	updated.Settings = g.Clone().Settings
	updated.UpdatedAt = s.now().UTC()
	s.current = &updated
	s.phase = to
	return updated.Clone(), nil
}

// Stop ends the active game and returns it.
func (s *Session) Stop() (Game, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	to, err := s.next(OpStop)
	if err != nil {
		return Game{}, err
	}

	stopped := *s.current
	s.current = nil
	s.phase = to
	return stopped, nil
}

// Restore installs a persisted game, or Idle when g is nil or no longer valid.
// It reports whether a game was restored.
func (s *Session) Restore(g *Game) bool {
	var restored *Game
	if g != nil {
		if valid, err := Validate(*g); err == nil {
			if valid.ID == "" {
				valid.ID = s.newID()
			}
			c := valid.Clone()
			restored = &c
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.current = restored
	if restored != nil {
		s.phase = Active
	} else {
		s.phase = Idle
	}
	return restored != nil
}
