package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/tagserver/broadcast"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/monitor"
	"github.com/wfunc/tagserver/network"
	"github.com/wfunc/tagserver/room"
	tagrpc "github.com/wfunc/tagserver/rpc"
	"github.com/wfunc/tagserver/services"
	"github.com/wfunc/tagserver/session"
)

// DefaultJoinURL QR 码内容前缀，后接游戏码
const DefaultJoinURL = "tag://join/"

// Options configures a GameServer. Zero values fall back to defaults.
type Options struct {
	Addr      string
	JoinURL   string
	Heartbeat time.Duration
	// Defaults fill in settings a create request leaves out.
	Defaults  room.Settings
	Metrics   *monitor.Metrics
	RPCServer *tagrpc.Server
}

type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	game           *services.GameService
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	rpcServer      *tagrpc.Server
	metrics        *monitor.Metrics

	defaults  room.Settings
	joinURL   string
	heartbeat time.Duration

	httpServer   *http.Server
	shutdownOnce sync.Once
	shutdownChan chan struct{}
}

func NewGameServer(game *services.GameService, sessions *session.Manager, broadcaster broadcast.Broadcaster, opts Options) *GameServer {
	if opts.JoinURL == "" {
		opts.JoinURL = DefaultJoinURL
	}
	if opts.Defaults.TagRadius <= 0 {
		opts.Defaults.TagRadius = room.DefaultTagRadius
	}
	if opts.Defaults.MaxPlayers <= 0 {
		opts.Defaults.MaxPlayers = room.DefaultMaxPlayers
	}
	s := &GameServer{
		addr:           opts.Addr,
		game:           game,
		sessionManager: sessions,
		broadcaster:    broadcaster,
		rpcServer:      opts.RPCServer,
		metrics:        opts.Metrics,
		defaults:       opts.Defaults,
		joinURL:        opts.JoinURL,
		heartbeat:      opts.Heartbeat,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves HTTP and websocket traffic until Shutdown.
func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}

	logger.Log.Infof("Game server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting traffic and closes live sessions.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.broadcaster != nil {
			if data, merr := json.Marshal(services.Event{Type: services.EventServerShutdown}); merr == nil {
				s.broadcaster.BroadcastToAll(network.MsgTypeEvent, data)
			}
		}
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		err = s.httpServer.Shutdown(ctx)
		// Hijacked websocket connections are not tracked by http.Server.
		s.sessionManager.Range(func(sess *session.Session) {
			sess.Close()
		})
	})
	return err
}

// identity 身份由上游网关校验后通过 header 或 query 传入
func identity(r *http.Request) room.Player {
	q := r.URL.Query()
	pick := func(header, param string) string {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
		return strings.TrimSpace(q.Get(param))
	}
	return room.Player{
		ID:     pick("X-Player-ID", "player_id"),
		Name:   pick("X-Player-Name", "name"),
		Avatar: pick("X-Player-Avatar", "avatar"),
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	player := identity(r)
	if player.ID == "" {
		http.Error(w, "missing player identity", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn), player)
}

func (s *GameServer) handleConnection(conn network.Connection, player room.Player) {
	sess := session.NewSession(uuid.New().String(), conn)
	sess.PlayerID = player.ID
	sess.Name = player.Name
	sess.Avatar = player.Avatar
	s.sessionManager.Add(sess)
	s.metrics.IncOnlinePlayers()
	if s.heartbeat > 0 {
		conn.SetHeartbeat(s.heartbeat)
	}

	logger.Log.Infow("new connection", "remote", conn.RemoteAddr().String(), "session_id", sess.GetID(), "player_id", player.ID)

	// 断线不离开游戏，玩家可重连继续
	defer func() {
		logger.Log.Infow("connection closed", "remote", conn.RemoteAddr().String(), "session_id", sess.GetID(), "player_id", player.ID)
		s.sessionManager.Remove(sess.GetID())
		s.metrics.DecOnlinePlayers()
		conn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := conn.ReadPacket()
			if err != nil {
				return
			}
			start := time.Now()
			s.metrics.IncMessagesReceived()
			s.handlePacket(sess, packet)
			s.metrics.ObserveMessageLatency(time.Since(start))
		}
	}
}
