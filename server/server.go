package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hectormc-main/casa-playgroundServer/broadcast"
	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/game"
	"github.com/hectormc-main/casa-playgroundServer/logger"
	"github.com/hectormc-main/casa-playgroundServer/monitor"
	"github.com/hectormc-main/casa-playgroundServer/network"
	rpcserver "github.com/hectormc-main/casa-playgroundServer/rpc"
	"github.com/hectormc-main/casa-playgroundServer/session"
	"github.com/hectormc-main/casa-playgroundServer/state"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type Options struct {
	HTTPAddress string
	// RPCAddress is optional; no RPC server is started when empty.
	RPCAddress string
	State      *state.Manager
	// Hub delivers events to /ws watchers; it should also be the manager's Publisher.
	Hub        *broadcast.Hub
	Monitor    *monitor.Monitor
	Heartbeat  time.Duration
	WatchQueue int
}

// StateServer serves the state manager over HTTP, the /ws event stream and net/rpc.
type StateServer struct {
	httpServer *http.Server
	rpcServer  *rpcserver.Server
	state      *state.Manager
	hub        *broadcast.Hub
	monitor    *monitor.Monitor
	upgrader   websocket.Upgrader
	heartbeat  time.Duration
	watchQueue int
}

func NewStateServer(opts Options) (*StateServer, error) {
	if opts.State == nil {
		return nil, errors.New("server needs a state manager")
	}
	hub := opts.Hub
	if hub == nil {
		hub = broadcast.NewHub(session.NewManager())
	}

	s := &StateServer{
		state:      opts.State,
		hub:        hub,
		monitor:    opts.Monitor,
		heartbeat:  opts.Heartbeat,
		watchQueue: opts.WatchQueue,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.httpServer = &http.Server{
		Addr:              opts.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if opts.RPCAddress != "" {
		rpcServer, err := rpcserver.NewServer(opts.RPCAddress, opts.State)
		if err != nil {
			return nil, fmt.Errorf("create RPC server: %w", err)
		}
		s.rpcServer = rpcServer
	}
	return s, nil
}

// Handler builds the HTTP routes.
func (s *StateServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /features", s.handleListFeatures)
	mux.HandleFunc("GET /features/{name}", s.handleGetFeature)
	mux.HandleFunc("PUT /features/{name}", s.handleChangeFeature)
	mux.HandleFunc("POST /features/reset", s.handleResetFeatures)

	mux.HandleFunc("GET /game", s.handleGetGame)
	mux.HandleFunc("POST /game", s.handleStartGame)
	mux.HandleFunc("PUT /game", s.handleUpdateGame)
	mux.HandleFunc("DELETE /game", s.handleStopGame)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.monitor.Handler())
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Start runs the RPC server in the background and serves HTTP until Shutdown.
func (s *StateServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}

	logger.Log.Infof("State server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Log.Info("State server closed")
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and disconnects watchers.
func (s *StateServer) Shutdown(ctx context.Context) error {
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
	err := s.httpServer.Shutdown(ctx)
	s.hub.CloseAll()
	return err
}

func (s *StateServer) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	all := s.state.ListFeatures()
	out := make(map[string]feature.State, len(all))
	for name, st := range all {
		out[string(name)] = st
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *StateServer) handleGetFeature(w http.ResponseWriter, r *http.Request) {
	st, ok := s.state.GetFeature(feature.Name(r.PathValue("name")))
	if !ok {
		writeError(w, feature.ErrUnknownFeature)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *StateServer) handleChangeFeature(w http.ResponseWriter, r *http.Request) {
	name := feature.Name(r.PathValue("name"))
	if _, ok := s.state.GetFeature(name); !ok {
		writeError(w, fmt.Errorf("%w: %q", feature.ErrUnknownFeature, name))
		return
	}

	var proposed feature.State
	if err := decodeBody(r, &proposed); err != nil {
		writeError(w, fmt.Errorf("%w: %v", feature.ErrInvalidState, err))
		return
	}
	if _, err := s.state.ChangeFeature(r.Context(), name, proposed); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *StateServer) handleResetFeatures(w http.ResponseWriter, r *http.Request) {
	if err := s.state.ResetFeatures(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *StateServer) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, ok := s.state.CurrentGame()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Result: state.NotFound.String(), Error: game.ErrNoActiveGame.Error()})
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *StateServer) handleStartGame(w http.ResponseWriter, r *http.Request) {
	g, err := decodeGame(r)
	if err != nil {
		writeError(w, err)
		return
	}
	started, err := s.state.StartGame(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

func (s *StateServer) handleUpdateGame(w http.ResponseWriter, r *http.Request) {
	g, err := decodeGame(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.state.UpdateGame(r.Context(), g); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *StateServer) handleStopGame(w http.ResponseWriter, r *http.Request) {
	if _, err := s.state.StopGame(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *StateServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.state.Health()
	status := http.StatusOK
	if !health.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// hello is the first message on /ws: the full state at connect time.
type hello struct {
	Session  string                   `json:"session"`
	Features map[string]feature.State `json:"features"`
	Game     *game.Game               `json:"game,omitempty"`
}

func (s *StateServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn, s.watchQueue)

	err = s.hub.Subscribe(sess, func() ([]byte, error) {
		greeting := hello{Session: sess.GetID(), Features: make(map[string]feature.State)}
		for name, st := range s.state.ListFeatures() {
			greeting.Features[string(name)] = st
		}
		if g, ok := s.state.CurrentGame(); ok {
			greeting.Game = &g
		}
		return network.Encode(network.MsgTypeHello, greeting)
	})
	if err != nil {
		logger.Log.Errorf("Failed to subscribe watcher: %v", err)
		sess.Close()
		return
	}
	s.monitor.IncSubscribers()
	logger.Log.Infof("New watcher from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Watcher closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.hub.Unsubscribe(sess.GetID())
		s.monitor.DecSubscribers()
		sess.Close()
	}()

	if s.heartbeat > 0 {
		wsConn.SetHeartbeat(s.heartbeat)
	}
	go sess.WritePump(s.heartbeat)

	// watchers only listen; reading keeps pongs and close frames flowing
	wsConn.Drain()
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

func decodeGame(r *http.Request) (game.Game, error) {
	var body struct {
		Name     string        `json:"name"`
		Settings game.Settings `json:"settings"`
	}
	if err := decodeBody(r, &body); err != nil {
		if errors.Is(err, game.ErrInvalidGame) {
			return game.Game{}, err
		}
		return game.Game{}, fmt.Errorf("%w: %v", game.ErrInvalidGame, err)
	}
	return game.Game{Name: body.Name, Settings: body.Settings}, nil
}

// statusFor maps an operation result to an HTTP status.
func statusFor(kind state.Result) int {
	switch kind {
	case state.Applied:
		return http.StatusOK
	case state.NotFound:
		return http.StatusNotFound
	case state.Invalid:
		return http.StatusBadRequest
	case state.Conflict:
		return http.StatusConflict
	case state.NotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := state.Kind(err)
	if kind == state.Failed {
		logger.Log.Errorf("State operation failed: %v", err)
	}
	writeJSON(w, statusFor(kind), errorBody{Result: kind.String(), Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Errorf("Failed to encode response: %v", err)
	}
}
