// Package feature holds the closed set of runtime features and their validated state.
package feature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Name identifies a feature. Only names present in the catalog are accepted.
type Name string

const (
	Maintenance  Name = "maintenance"
	Leaderboard  Name = "leaderboard"
	Chat         Name = "chat"
	DoublePoints Name = "double_points"
	Registration Name = "registration"
)

func (n Name) String() string {
	return string(n)
}

var (
	ErrUnknownFeature  = errors.New("unknown feature")
	ErrInvalidState    = errors.New("invalid feature state")
	ErrCorruptDefaults = errors.New("feature defaults are corrupt")
)

// State is the configuration of a single feature. Options hold the feature-specific
// settings as a canonical JSON object once the state has been normalized.
type State struct {
	Enabled bool            `json:"enabled"`
	Options json.RawMessage `json:"options,omitempty"`
}

// Equal reports whether two states carry the same flag and the same options bytes.
func (s State) Equal(other State) bool {
	return s.Enabled == other.Enabled && bytes.Equal(s.Options, other.Options)
}

func (s State) clone() State {
	if s.Options != nil {
		s.Options = append(json.RawMessage(nil), s.Options...)
	}
	return s
}

// Definition describes one feature: its default state and how proposed states are checked.
type Definition struct {
	Name    Name
	Default State
	// normalize decodes the options of a proposed state into the feature's typed
	// options, validates them and returns the canonical state.
	normalize func(State) (State, error)
}

// Normalize validates s and returns its canonical form.
func (d Definition) Normalize(s State) (State, error) {
	if d.normalize == nil {
		return State{}, fmt.Errorf("%w: %s has no validator", ErrCorruptDefaults, d.Name)
	}
	out, err := d.normalize(s)
	if err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrInvalidState, d.Name, err)
	}
	return out, nil
}

// Define builds a Definition whose options decode into T. Omitted option fields keep the
// values of defaults; unknown fields are rejected. check runs against the decoded value
// together with the enabled flag.
func Define[T any](name Name, enabled bool, defaults T, check func(enabled bool, opts T) error) Definition {
	normalize := func(s State) (State, error) {
		opts := defaults
		if len(s.Options) > 0 && !bytes.Equal(bytes.TrimSpace(s.Options), []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(s.Options))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&opts); err != nil {
				return State{}, fmt.Errorf("options: %v", err)
			}
			if dec.More() {
				return State{}, errors.New("options: trailing data")
			}
		}
		if check != nil {
			if err := check(s.Enabled, opts); err != nil {
				return State{}, err
			}
		}
		raw, err := json.Marshal(opts)
		if err != nil {
			return State{}, fmt.Errorf("options: %v", err)
		}
		return State{Enabled: s.Enabled, Options: raw}, nil
	}

	d := Definition{Name: name, normalize: normalize}
	d.Default = State{Enabled: enabled}
	if raw, err := json.Marshal(defaults); err == nil {
		d.Default.Options = raw
	}
	return d
}

// Catalog is the ordered, closed set of feature definitions.
type Catalog []Definition

// Lookup returns the definition registered under name.
func (c Catalog) Lookup(name Name) (Definition, bool) {
	for _, d := range c {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Names lists the catalog's feature names in declaration order.
func (c Catalog) Names() []Name {
	names := make([]Name, 0, len(c))
	for _, d := range c {
		names = append(names, d.Name)
	}
	return names
}

// Validate checks the catalog is usable: unique non-empty names and defaults that pass
// their own validators, already in canonical form.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty catalog", ErrCorruptDefaults)
	}
	seen := make(map[Name]bool, len(c))
	for _, d := range c {
		if d.Name == "" {
			return fmt.Errorf("%w: empty feature name", ErrCorruptDefaults)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate feature %s", ErrCorruptDefaults, d.Name)
		}
		seen[d.Name] = true

		norm, err := d.Normalize(d.Default)
		if err != nil {
			return fmt.Errorf("%w: default for %s: %v", ErrCorruptDefaults, d.Name, err)
		}
		if !norm.Equal(d.Default) {
			return fmt.Errorf("%w: default for %s is not canonical", ErrCorruptDefaults, d.Name)
		}
	}
	return nil
}
