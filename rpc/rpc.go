package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/rpc"

	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/game"
	"github.com/hectormc-main/casa-playgroundServer/logger"
	"github.com/hectormc-main/casa-playgroundServer/state"
)

// ServiceName is the name the state service is registered under.
const ServiceName = "State"

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	server   *rpc.Server
}

// NewServer listens on addr and registers a StateService for manager.
func NewServer(addr string, manager *state.Manager) (*Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(ServiceName, NewStateService(manager)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
		server:   server,
	}, nil
}

// Addr is the address actually bound, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// Reply is embedded in every reply. OK is true only when the operation applied;
// otherwise Result names the failure kind and Reason carries the message.
type Reply struct {
	OK     bool
	Result string
	Reason string
}

func (r *Reply) set(err error) {
	kind := state.Kind(err)
	r.OK = kind.OK()
	r.Result = kind.String()
	if err != nil {
		r.Reason = err.Error()
	}
}

// Request is the argument of calls that take no input. gob refuses structs without
// exported fields, so it carries the caller's name, which is only logged.
type Request struct {
	Client string
}

type ListFeaturesReply struct {
	Reply
	Features map[string]feature.State
}

type FeatureArgs struct {
	Name string
}

type FeatureReply struct {
	Reply
	State feature.State
}

type ChangeFeatureArgs struct {
	Name  string
	State feature.State
}

// GameArgs carries a game name and its settings as a JSON object.
type GameArgs struct {
	Name     string
	Settings []byte
}

// GameReply carries the game as JSON; settings hold arbitrary values gob cannot encode.
type GameReply struct {
	Reply
	Game []byte
}

// StateService exposes state.Manager over net/rpc. Methods follow the net/rpc
// signature and only return an error for transport-level faults; operation
// failures are reported in the reply.
type StateService struct {
	manager *state.Manager
}

func NewStateService(manager *state.Manager) *StateService {
	return &StateService{manager: manager}
}

func (s *StateService) ListFeatures(args *Request, reply *ListFeaturesReply) error {
	all := s.manager.ListFeatures()
	reply.Features = make(map[string]feature.State, len(all))
	for name, st := range all {
		reply.Features[string(name)] = st
	}
	reply.set(nil)
	return nil
}

func (s *StateService) GetFeature(args *FeatureArgs, reply *FeatureReply) error {
	st, ok := s.manager.GetFeature(feature.Name(args.Name))
	if !ok {
		reply.set(feature.ErrUnknownFeature)
		return nil
	}
	reply.State = st
	reply.set(nil)
	return nil
}

func (s *StateService) ChangeFeature(args *ChangeFeatureArgs, reply *FeatureReply) error {
	st, err := s.manager.ChangeFeature(context.Background(), feature.Name(args.Name), args.State)
	reply.State = st
	reply.set(err)
	return nil
}

func (s *StateService) ResetFeatures(args *Request, reply *Reply) error {
	logger.Log.Debugw("Resetting features over RPC", "client", args.Client)
	reply.set(s.manager.ResetFeatures(context.Background()))
	return nil
}

func (s *StateService) CurrentGame(args *Request, reply *GameReply) error {
	g, ok := s.manager.CurrentGame()
	if !ok {
		reply.set(game.ErrNoActiveGame)
		return nil
	}
	return reply.setGame(g, nil)
}

func (s *StateService) StartGame(args *GameArgs, reply *GameReply) error {
	g, err := args.game()
	if err == nil {
		g, err = s.manager.StartGame(context.Background(), g)
	}
	return reply.setGame(g, err)
}

func (s *StateService) UpdateGame(args *GameArgs, reply *GameReply) error {
	g, err := args.game()
	if err == nil {
		g, err = s.manager.UpdateGame(context.Background(), g)
	}
	return reply.setGame(g, err)
}

func (s *StateService) StopGame(args *Request, reply *GameReply) error {
	logger.Log.Debugw("Stopping game over RPC", "client", args.Client)
	g, err := s.manager.StopGame(context.Background())
	return reply.setGame(g, err)
}

func (a *GameArgs) game() (game.Game, error) {
	g := game.Game{Name: a.Name}
	if len(a.Settings) > 0 {
		if err := json.Unmarshal(a.Settings, &g.Settings); err != nil {
			if errors.Is(err, game.ErrInvalidGame) {
				return game.Game{}, err
			}
			return game.Game{}, fmt.Errorf("%w: settings: %v", game.ErrInvalidGame, err)
		}
	}
	return g, nil
}

func (r *GameReply) setGame(g game.Game, err error) error {
	r.set(err)
	if err != nil {
		return nil
	}
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	r.Game = data
	return nil
}
