// models/gorm_models.go
package models

import (
	"time"
)

// StateRecord holds one independently loadable part of a Snapshot, keyed by
// KeyFeatures or KeyGame. Data is the JSON encoding of that part; an empty game
// record means no game is active.
type StateRecord struct {
	Key       string `gorm:"column:record_key;primaryKey;size:32"`
	Data      string `gorm:"type:text;not null"`
	Version   uint64 `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (StateRecord) TableName() string {
	return "state_records"
}
