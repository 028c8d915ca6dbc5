package state

import (
	"errors"

	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/game"
)

// ErrNotReady is returned by mutations issued before Load has completed.
var ErrNotReady = errors.New("state not loaded yet")

// Result tags why an operation did or did not apply.
type Result int

const (
	Applied Result = iota
	NotFound
	Invalid
	Conflict
	NotReady
	Failed
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case NotFound:
		return "not_found"
	case Invalid:
		return "invalid"
	case Conflict:
		return "conflict"
	case NotReady:
		return "not_ready"
	default:
		return "failed"
	}
}

// OK is the boolean view of a result: true only when the operation applied.
func (r Result) OK() bool {
	return r == Applied
}

// Kind classifies an error returned by a Manager operation.
func Kind(err error) Result {
	switch {
	case err == nil:
		return Applied
	case errors.Is(err, ErrNotReady):
		return NotReady
	case errors.Is(err, feature.ErrUnknownFeature):
		return NotFound
	case errors.Is(err, feature.ErrInvalidState), errors.Is(err, game.ErrInvalidGame):
		return Invalid
	case errors.Is(err, game.ErrGameActive),
		errors.Is(err, game.ErrNoActiveGame),
		errors.Is(err, game.ErrGameMismatch),
		errors.Is(err, game.ErrTransitionNotAllowed):
		return Conflict
	default:
		return Failed
	}
}
