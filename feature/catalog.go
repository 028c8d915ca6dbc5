package feature

import (
	"errors"
	"fmt"
	"math"
)

type MaintenanceOptions struct {
	Message string `json:"message"`
}

type LeaderboardOptions struct {
	Size int `json:"size"`
}

type ChatOptions struct {
	MaxMessageLength int `json:"max_message_length"`
	SlowModeSeconds  int `json:"slow_mode_seconds"`
}

type DoublePointsOptions struct {
	Multiplier float64 `json:"multiplier"`
}

// RegistrationOptions is empty; registration is a plain on/off switch.
type RegistrationOptions struct{}

const maxMaintenanceMessage = 280

func inRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s must be between %d and %d, got %d", field, lo, hi, v)
	}
	return nil
}

// DefaultCatalog is the compiled-in feature set.
func DefaultCatalog() Catalog {
	return Catalog{
		Define(Maintenance, false, MaintenanceOptions{}, func(enabled bool, o MaintenanceOptions) error {
			if len([]rune(o.Message)) > maxMaintenanceMessage {
				return fmt.Errorf("message longer than %d characters", maxMaintenanceMessage)
			}
			if enabled && o.Message == "" {
				return errors.New("message is required while maintenance is enabled")
			}
			return nil
		}),
		Define(Leaderboard, true, LeaderboardOptions{Size: 10}, func(_ bool, o LeaderboardOptions) error {
			return inRange("size", o.Size, 1, 100)
		}),
		Define(Chat, true, ChatOptions{MaxMessageLength: 500}, func(_ bool, o ChatOptions) error {
			if err := inRange("max_message_length", o.MaxMessageLength, 1, 2000); err != nil {
				return err
			}
			return inRange("slow_mode_seconds", o.SlowModeSeconds, 0, 600)
		}),
		Define(DoublePoints, false, DoublePointsOptions{Multiplier: 2}, func(_ bool, o DoublePointsOptions) error {
			if math.IsNaN(o.Multiplier) || o.Multiplier < 1 || o.Multiplier > 10 {
				return fmt.Errorf("multiplier must be between 1 and 10, got %v", o.Multiplier)
			}
			return nil
		}),
		Define(Registration, true, RegistrationOptions{}, nil),
	}
}
