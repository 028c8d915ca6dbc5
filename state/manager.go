// Package state owns the process-wide feature registry and game session, and is the
// only entry point transports use to read or change them.
package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/game"
	"github.com/hectormc-main/casa-playgroundServer/logger"
	"github.com/hectormc-main/casa-playgroundServer/models"
	"github.com/hectormc-main/casa-playgroundServer/monitor"
	"github.com/hectormc-main/casa-playgroundServer/persistence"
	"github.com/hectormc-main/casa-playgroundServer/timer"
)

const (
	DefaultPersistTimeout = 5 * time.Second
	DefaultRetryInterval  = 10 * time.Second
)

// Publisher receives every applied mutation.
type Publisher interface {
	Publish(event models.Event)
}

type Options struct {
	Store   persistence.Store
	Catalog feature.Catalog // DefaultCatalog when nil
	// PersistTimeout bounds each load and save.
	PersistTimeout time.Duration
	// RetryInterval is how often a failed save is retried; <= 0 disables retries.
	RetryInterval time.Duration
	Monitor       *monitor.Monitor
	Publisher     Publisher
}

// Health is a point-in-time view of readiness and persistence.
type Health struct {
	Ready       bool      `json:"ready"`
	Dirty       bool      `json:"dirty"`
	Version     uint64    `json:"version"`
	LastError   string    `json:"last_error,omitempty"`
	LastSavedAt time.Time `json:"last_saved_at,omitempty"`
}

// Manager composes the feature registry and the game session. Feature mutations and
// game mutations are each serialized across mutate and persist; reads never wait on
// storage.
type Manager struct {
	features *feature.Registry
	session  *game.Session
	store    persistence.Store

	timeout   time.Duration
	monitor   *monitor.Monitor
	publisher Publisher

	featureMutex sync.Mutex
	gameMutex    sync.Mutex

	// saveMutex orders snapshots and writes; version only advances under it.
	saveMutex sync.Mutex
	version   atomic.Uint64

	ready atomic.Bool

	healthMutex sync.Mutex
	dirty       bool
	lastErr     error
	lastSavedAt time.Time

	timers        *timer.Manager
	retryInterval time.Duration
	retryID       int64
}

func NewManager(opts Options) (*Manager, error) {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = feature.DefaultCatalog()
	}
	registry, err := feature.NewRegistry(catalog)
	if err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, errors.New("state manager needs a store")
	}

	timeout := opts.PersistTimeout
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}

	m := &Manager{
		features:      registry,
		session:       game.NewSession(),
		store:         opts.Store,
		timeout:       timeout,
		monitor:       opts.Monitor,
		publisher:     opts.Publisher,
		retryInterval: opts.RetryInterval,
	}
	if m.retryInterval > 0 {
		m.timers = timer.NewManager(min(m.retryInterval/4, 100*time.Millisecond))
	}
	return m, nil
}

// Load reads the persisted snapshot and installs it. Missing or unreadable snapshots
// leave the defaults in place. It reports whether an existing snapshot was used, and
// unblocks mutations either way.
func (m *Manager) Load(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	snapshot, err := m.store.Load(ctx)
	if errors.Is(err, persistence.ErrNoSnapshot) {
		m.monitor.ObservePersist("load", time.Since(start), nil)
	} else {
		m.monitor.ObservePersist("load", time.Since(start), err)
	}

	found := false
	switch {
	case err == nil:
		applied, dropped := m.features.Restore(snapshot.Features)
		hasGame := m.session.Restore(snapshot.Game)
		m.version.Store(snapshot.Version)
		found = true
		logger.Log.Infow("Loaded state snapshot",
			"version", snapshot.Version, "features", applied, "dropped", dropped, "game_active", hasGame)
	case errors.Is(err, persistence.ErrNoSnapshot):
		m.features.Reset()
		m.session.Restore(nil)
		logger.Log.Info("No state snapshot found, starting from defaults")
	default:
		m.features.Reset()
		m.session.Restore(nil)
		logger.Log.Warnf("Failed to load state snapshot, starting from defaults: %v", err)
	}

	m.monitor.SetGameActive(m.session.Phase() == game.Active)
	m.ready.Store(true)
	return found
}

// Ready reports whether Load has completed.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

// ListFeatures returns every feature with its current state.
func (m *Manager) ListFeatures() map[feature.Name]feature.State {
	return m.features.All()
}

// GetFeature returns the state of name, or false for an unknown feature.
func (m *Manager) GetFeature(name feature.Name) (feature.State, bool) {
	return m.features.Get(name)
}

// Features exposes the catalog in declaration order.
func (m *Manager) Features() []feature.Name {
	return m.features.Catalog().Names()
}

// ChangeFeature validates and applies a new state for name, then persists.
func (m *Manager) ChangeFeature(ctx context.Context, name feature.Name, proposed feature.State) (feature.State, error) {
	var applied feature.State
	err := m.mutate(ctx, "change_feature", &m.featureMutex, func() (models.Event, error) {
		s, err := m.features.Change(name, proposed)
		if err != nil {
			return models.Event{}, err
		}
		applied = s
		return models.Event{Type: models.EventFeatureChanged, Feature: string(name), State: &s}, nil
	})
	return applied, err
}

// ResetFeatures restores every feature default, then persists.
func (m *Manager) ResetFeatures(ctx context.Context) error {
	return m.mutate(ctx, "reset_features", &m.featureMutex, func() (models.Event, error) {
		m.features.Reset()
		return models.Event{Type: models.EventFeaturesReset, Features: stringKeys(m.features.All())}, nil
	})
}

// CurrentGame returns the active game, or false when none is running.
func (m *Manager) CurrentGame() (game.Game, bool) {
	return m.session.Current()
}

// StartGame starts g when no game is active, then persists.
func (m *Manager) StartGame(ctx context.Context, g game.Game) (game.Game, error) {
	var started game.Game
	err := m.mutate(ctx, "start_game", &m.gameMutex, func() (models.Event, error) {
		s, err := m.session.Start(g)
		if err != nil {
			return models.Event{}, err
		}
		started = s
		m.monitor.SetGameActive(true)
		return models.Event{Type: models.EventGameStarted, Game: &s}, nil
	})
	return started, err
}

// UpdateGame replaces the settings of the active game, then persists.
func (m *Manager) UpdateGame(ctx context.Context, g game.Game) (game.Game, error) {
	var updated game.Game
	err := m.mutate(ctx, "update_game", &m.gameMutex, func() (models.Event, error) {
		u, err := m.session.Update(g)
		if err != nil {
			return models.Event{}, err
		}
		updated = u
		return models.Event{Type: models.EventGameUpdated, Game: &u}, nil
	})
	return updated, err
}

// StopGame ends the active game, then persists.
func (m *Manager) StopGame(ctx context.Context) (game.Game, error) {
	var stopped game.Game
	err := m.mutate(ctx, "stop_game", &m.gameMutex, func() (models.Event, error) {
		s, err := m.session.Stop()
		if err != nil {
			return models.Event{}, err
		}
		stopped = s
		m.monitor.SetGameActive(false)
		return models.Event{Type: models.EventGameStopped, Game: &s}, nil
	})
	return stopped, err
}

// mutate runs apply under lock, persists on success and publishes the event. A failed
// save does not undo the in-memory change; it is retried in the background.
func (m *Manager) mutate(ctx context.Context, op string, lock *sync.Mutex, apply func() (models.Event, error)) error {
	if !m.ready.Load() {
		m.monitor.ObserveOperation(op, NotReady.String())
		return ErrNotReady
	}

	lock.Lock()
	defer lock.Unlock()

	event, err := apply()
	if err != nil {
		kind := Kind(err)
		m.monitor.ObserveOperation(op, kind.String())
		logger.Log.Debugw("Rejected state operation", "op", op, "result", kind.String(), "error", err)
		return err
	}

	if err := m.persist(ctx); err != nil {
		logger.Log.Warnw("Applied state operation but could not persist it", "op", op, "error", err)
	}

	m.monitor.ObserveOperation(op, Applied.String())
	if m.publisher != nil {
		event.At = time.Now().UTC()
		m.publisher.Publish(event)
	}
	return nil
}

// persist writes a snapshot taken under saveMutex, so the latest save always reflects
// every mutation that completed before it.
func (m *Manager) persist(ctx context.Context) error {
	m.saveMutex.Lock()
	defer m.saveMutex.Unlock()

	snapshot := m.snapshot(m.version.Add(1))

	// the request may end before the write does; keep its values, drop its cancellation
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	start := time.Now()
	err := m.store.Save(ctx, snapshot)
	m.monitor.ObservePersist("save", time.Since(start), err)
	m.recordSave(err)
	return err
}

func (m *Manager) snapshot(version uint64) *models.Snapshot {
	s := &models.Snapshot{
		Version:  version,
		SavedAt:  time.Now().UTC(),
		Features: stringKeys(m.features.All()),
	}
	if g, ok := m.session.Current(); ok {
		s.Game = &g
	}
	return s
}

func stringKeys(states map[feature.Name]feature.State) map[string]feature.State {
	out := make(map[string]feature.State, len(states))
	for name, s := range states {
		out[string(name)] = s
	}
	return out
}

func (m *Manager) recordSave(err error) {
	m.healthMutex.Lock()
	defer m.healthMutex.Unlock()

	if err != nil {
		m.dirty = true
		m.lastErr = err
		m.monitor.SetDirty(true)
		if m.timers != nil && m.retryID == 0 {
			m.retryID = m.timers.Add(m.retryInterval, m.retryInterval, m.retry)
		}
		return
	}

	m.dirty = false
	m.lastErr = nil
	m.lastSavedAt = time.Now().UTC()
	m.monitor.SetDirty(false)
	if m.timers != nil && m.retryID != 0 {
		m.timers.Remove(m.retryID)
		m.retryID = 0
	}
}

func (m *Manager) isDirty() bool {
	m.healthMutex.Lock()
	defer m.healthMutex.Unlock()
	return m.dirty
}

// retry re-saves the current state after an earlier save failed.
func (m *Manager) retry() {
	if !m.isDirty() {
		return
	}
	if err := m.persist(context.Background()); err != nil {
		logger.Log.Warnf("Retrying state save failed: %v", err)
		return
	}
	logger.Log.Info("State saved after earlier failure")
}

// Flush saves the current state if the last save failed.
func (m *Manager) Flush(ctx context.Context) error {
	if !m.isDirty() {
		return nil
	}
	return m.persist(ctx)
}

// Health reports readiness and the outcome of the most recent save.
func (m *Manager) Health() Health {
	m.healthMutex.Lock()
	defer m.healthMutex.Unlock()

	h := Health{
		Ready:       m.ready.Load(),
		Dirty:       m.dirty,
		Version:     m.version.Load(),
		LastSavedAt: m.lastSavedAt,
	}
	if m.lastErr != nil {
		h.LastError = m.lastErr.Error()
	}
	return h
}

// Close stops background retries. It does not close the store.
func (m *Manager) Close() {
	if m.timers != nil {
		m.timers.Stop()
	}
}
