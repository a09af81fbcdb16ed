package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/tagserver/anticheat"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/services"
)

// ServiceName 注册到 net/rpc 的服务名
const ServiceName = "Moderation"

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the moderation service.
func NewServer(addr string, moderation *ModerationService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, moderation); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.address }

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
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
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// ModerationService exposes the monitor's administrative views.
// Methods follow the net/rpc signature: exported args, pointer reply, error result.
type ModerationService struct {
	game *services.GameService
}

func NewModerationService(game *services.GameService) *ModerationService {
	return &ModerationService{game: game}
}

type PlayerArgs struct {
	PlayerID string
}

type UnflagReply struct {
	Unflagged bool
}

type ViolationsReply struct {
	Violations []anticheat.Violation
}

type FlaggedArgs struct{}

type FlaggedReply struct {
	Players []anticheat.FlaggedPlayer
}

type StatsArgs struct{}

type StatsReply struct {
	Stats services.Stats
}

var errMissingPlayer = errors.New("player id required")

func (m *ModerationService) Unflag(args *PlayerArgs, reply *UnflagReply) error {
	if args.PlayerID == "" {
		return errMissingPlayer
	}
	reply.Unflagged = m.game.UnflagPlayer(args.PlayerID)
	return nil
}

func (m *ModerationService) Violations(args *PlayerArgs, reply *ViolationsReply) error {
	if args.PlayerID == "" {
		return errMissingPlayer
	}
	reply.Violations = m.game.Violations(args.PlayerID)
	return nil
}

func (m *ModerationService) Flagged(args *FlaggedArgs, reply *FlaggedReply) error {
	reply.Players = m.game.Flagged()
	return nil
}

func (m *ModerationService) Stats(args *StatsArgs, reply *StatsReply) error {
	reply.Stats = m.game.Stats()
	return nil
}
