// Package game tracks the single active game session.
package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength    = 64
	MaxSettingsDepth = 8
)

var (
	ErrInvalidGame  = errors.New("invalid game")
	ErrGameActive   = errors.New("a game is already active")
	ErrNoActiveGame = errors.New("no active game")
	ErrGameMismatch = errors.New("game name does not match the active game")
)

// Settings is the free-form configuration of a game. It is always a JSON object.
type Settings map[string]any

// UnmarshalJSON rejects anything that is not an object (or null).
func (s *Settings) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: settings must be a JSON object", ErrInvalidGame)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*s = m
	return nil
}

// Game is one running session. ID and the timestamps are owned by Session.
type Game struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Settings  Settings  `json:"settings"`
	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate checks a caller-supplied game and returns its normalized form: trimmed name
// and non-nil settings.
func Validate(g Game) (Game, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return Game{}, fmt.Errorf("%w: name is required", ErrInvalidGame)
	}
	if utf8.RuneCountInString(g.Name) > MaxNameLength {
		return Game{}, fmt.Errorf("%w: name longer than %d characters", ErrInvalidGame, MaxNameLength)
	}
	if g.Settings == nil {
		g.Settings = Settings{}
	}
	if depth(map[string]any(g.Settings)) > MaxSettingsDepth {
		return Game{}, fmt.Errorf("%w: settings nested deeper than %d levels", ErrInvalidGame, MaxSettingsDepth)
	}
	// settings must survive a JSON round trip, otherwise they cannot be persisted
	if _, err := json.Marshal(g.Settings); err != nil {
		return Game{}, fmt.Errorf("%w: settings: %v", ErrInvalidGame, err)
	}
	return g, nil
}

func depth(v any) int {
	switch t := v.(type) {
	case map[string]any:
		d := 0
		for _, child := range t {
			d = max(d, depth(child))
		}
		return d + 1
	case Settings:
		return depth(map[string]any(t))
	case []any:
		d := 0
		for _, child := range t {
			d = max(d, depth(child))
		}
		return d + 1
	default:
		return 0
	}
}

// Clone returns a deep copy so callers cannot mutate session-owned settings.
func (g Game) Clone() Game {
	g.Settings = cloneValue(map[string]any(g.Settings)).(map[string]any)
	return g
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneValue(child)
		}
		return out
	case Settings:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return v
	}
}
