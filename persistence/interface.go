// persistence/interface.go
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hectormc-main/casa-playgroundServer/config"
	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/game"
	"github.com/hectormc-main/casa-playgroundServer/models"
)

// Store reads and writes whole state snapshots. It applies no business rules.
type Store interface {
	// Load returns the stored snapshot, ErrNoSnapshot when nothing was saved yet, or
	// ErrCorruptSnapshot when the stored data cannot be decoded.
	Load(ctx context.Context) (*models.Snapshot, error)
	// Save replaces the stored snapshot. A reader never observes a partial write.
	Save(ctx context.Context, snapshot *models.Snapshot) error
	Close() error
}

var (
	ErrNoSnapshot      = errors.New("no snapshot stored")
	ErrCorruptSnapshot = errors.New("stored snapshot is corrupt")
	ErrUnknownDriver   = errors.New("unknown storage driver")
)

// Open builds the store selected by cfg.Driver.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.File.Path)
	case "gorm-postgres":
		pg := cfg.Postgres
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "postgres":
		pg := cfg.Postgres
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "sqlite":
		return NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// record is one row of the row-oriented stores before encoding.
type record struct {
	key     string
	data    string
	version uint64
}

// splitSnapshot encodes the two independent parts of a snapshot. A nil game is stored
// as an empty record so a stale game row is overwritten.
func splitSnapshot(s *models.Snapshot) ([]record, error) {
	features, err := json.Marshal(s.Features)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	gameData := ""
	if s.Game != nil {
		raw, err := json.Marshal(s.Game)
		if err != nil {
			return nil, fmt.Errorf("encode game: %w", err)
		}
		gameData = string(raw)
	}
	return []record{
		{key: models.KeyFeatures, data: string(features), version: s.Version},
		{key: models.KeyGame, data: gameData, version: s.Version},
	}, nil
}

// joinRecords rebuilds a snapshot from whichever records are present. A part that fails
// to decode is left out so the other part still loads.
func joinRecords(records []record) (*models.Snapshot, error) {
	if len(records) == 0 {
		return nil, ErrNoSnapshot
	}
	snapshot := &models.Snapshot{}
	decoded := 0
	for _, r := range records {
		snapshot.Version = max(snapshot.Version, r.version)
		switch r.key {
		case models.KeyFeatures:
			var features map[string]feature.State
			if err := json.Unmarshal([]byte(r.data), &features); err != nil {
				continue
			}
			snapshot.Features = features
			decoded++
		case models.KeyGame:
			if r.data == "" {
				decoded++
				continue
			}
			var g game.Game
			if err := json.Unmarshal([]byte(r.data), &g); err != nil {
				continue
			}
			snapshot.Game = &g
			decoded++
		}
	}
	if decoded == 0 {
		return nil, ErrCorruptSnapshot
	}
	return snapshot, nil
}
