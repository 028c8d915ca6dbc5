// models/models.go
package models

import (
	"time"

	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/game"
)

// Snapshot is the durable form of the whole process state. Features and Game are
// independent: either may be missing and the other still restores.
type Snapshot struct {
	Version  uint64                   `json:"version"`
	SavedAt  time.Time                `json:"saved_at"`
	Features map[string]feature.State `json:"features,omitempty"`
	Game     *game.Game               `json:"game,omitempty"`
}

// Record keys used by the row-oriented stores.
const (
	KeyFeatures = "features"
	KeyGame     = "game"
)

// EventType names a state change published to watchers.
type EventType string

const (
	EventFeatureChanged EventType = "feature_changed"
	EventFeaturesReset  EventType = "features_reset"
	EventGameStarted    EventType = "game_started"
	EventGameUpdated    EventType = "game_updated"
	EventGameStopped    EventType = "game_stopped"
)

// Event describes one applied mutation.
type Event struct {
	Type     EventType                `json:"type"`
	Feature  string                   `json:"feature,omitempty"`
	State    *feature.State           `json:"state,omitempty"`
	Features map[string]feature.State `json:"features,omitempty"`
	Game     *game.Game               `json:"game,omitempty"`
	At       time.Time                `json:"at"`
}
