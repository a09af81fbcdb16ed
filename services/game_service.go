// services/game_service.go
package services

import (
	"context"
	"errors"

	"github.com/wfunc/tagserver/anticheat"
	"github.com/wfunc/tagserver/gameerr"
	"github.com/wfunc/tagserver/geo"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/models"
	"github.com/wfunc/tagserver/monitor"
	"github.com/wfunc/tagserver/persistence"
	"github.com/wfunc/tagserver/room"
	"github.com/wfunc/tagserver/tagging"
)

// 结束原因
const (
	EndReasonHost    = "host"
	EndReasonExpired = "expired"
)

// ErrHistoryUnavailable is returned by history queries when no database is configured.
var ErrHistoryUnavailable = errors.New("game history unavailable")

// Archive accepts ended games for persistence.
type Archive interface {
	Submit(rec models.GameRecord) error
}

// Stats 服务整体统计
type Stats struct {
	Games     room.Stats      `json:"games"`
	Anticheat anticheat.Stats `json:"anticheat"`
}

// Option configures a GameService.
type Option func(*GameService)

func WithNotifier(n Notifier) Option {
	return func(s *GameService) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithArchive(a Archive) Option {
	return func(s *GameService) { s.archive = a }
}

// WithHistory enables archived-game queries.
func WithHistory(db persistence.Database) Option {
	return func(s *GameService) { s.history = db }
}

func WithMetrics(m *monitor.Metrics) Option {
	return func(s *GameService) { s.metrics = m }
}

// GameService 是对外的操作入口：游戏生命周期、位置上报、审核视图
type GameService struct {
	registry *room.Registry
	monitor  *anticheat.Monitor
	protocol *tagging.Protocol

	notifier Notifier
	archive  Archive
	history  persistence.Database
	metrics  *monitor.Metrics
}

func NewGameService(registry *room.Registry, mon *anticheat.Monitor, protocol *tagging.Protocol, opts ...Option) *GameService {
	s := &GameService{
		registry: registry,
		monitor:  mon,
		protocol: protocol,
		notifier: nopNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the game registry for read-only lookups.
func (s *GameService) Registry() *room.Registry { return s.registry }

func view(snap room.Snapshot) *models.GameRecord {
	rec := models.FromSnapshot(snap)
	return &rec
}

func (s *GameService) notifyAll(typ EventType, snap room.Snapshot, payload EventPayload) {
	payload.Game = view(snap)
	s.notifier.Notify(Event{Type: typ, GameID: snap.ID, Recipients: snap.PlayerIDs(), Payload: payload})
}

func (s *GameService) notifyIt(snap room.Snapshot) {
	if snap.ItPlayerID == "" {
		return
	}
	s.notifier.Notify(Event{
		Type:       EventYouAreIt,
		GameID:     snap.ID,
		Recipients: []string{snap.ItPlayerID},
		Payload:    EventPayload{PlayerID: snap.ItPlayerID},
	})
}

// CreateGame creates a waiting game hosted by host.
func (s *GameService) CreateGame(host room.Player, settings room.Settings) (room.Snapshot, error) {
	return s.registry.Create(host, settings)
}

// JoinGame adds player to the game with the given code.
func (s *GameService) JoinGame(code string, player room.Player) (room.Snapshot, error) {
	snap, err := s.registry.Join(code, player)
	if err != nil {
		return room.Snapshot{}, err
	}
	s.notifyAll(EventPlayerJoined, snap, EventPayload{PlayerID: player.ID})
	return snap, nil
}

// LeaveGame removes the player from their current game.
func (s *GameService) LeaveGame(playerID string) (room.LeaveResult, error) {
	res, err := s.registry.Leave(playerID)
	if err != nil {
		return room.LeaveResult{}, err
	}
	if !res.Deleted {
		s.notifyAll(EventPlayerLeft, res.Game, EventPayload{PlayerID: playerID})
		if res.ItReassigned {
			s.notifyIt(res.Game)
		}
	}
	return res, nil
}

// StartGame starts the game and tells the chosen player they are IT.
func (s *GameService) StartGame(gameID, requesterID string) (room.Snapshot, error) {
	snap, err := s.registry.Start(gameID, requesterID)
	if err != nil {
		return room.Snapshot{}, err
	}
	s.notifyAll(EventGameStarted, snap, EventPayload{})
	s.notifyIt(snap)
	return snap, nil
}

// TagPlayer applies a tag once the protocol accepts it.
func (s *GameService) TagPlayer(gameID, taggerID, targetID string) (room.TagOutcome, error) {
	out, err := s.registry.Tag(gameID, taggerID, targetID, s.protocol)
	if err != nil {
		reason := gameerr.KindOf(err).String()
		var gerr *gameerr.Error
		if errors.As(err, &gerr) && gerr.Reason != "" {
			reason = gerr.Reason
		}
		s.metrics.ObserveTag(false, reason)
		return room.TagOutcome{}, err
	}
	s.metrics.ObserveTag(true, "")

	logger.Log.Infow("player tagged", "game_id", gameID, "tagger_id", taggerID, "target_id", targetID,
		"distance", out.Record.Distance, "tagger_flagged", out.Verdict.TaggerFlagged)

	rec := view(out.Game)
	tag := rec.Tags[len(rec.Tags)-1]
	s.notifier.Notify(Event{
		Type:       EventPlayerTagged,
		GameID:     gameID,
		Recipients: out.Game.PlayerIDs(),
		Payload:    EventPayload{Game: rec, PlayerID: targetID, Tag: &tag},
	})
	s.notifyIt(out.Game)
	return out, nil
}

// EndGame ends an active game on behalf of its host.
func (s *GameService) EndGame(gameID, requesterID string) (room.Snapshot, error) {
	snap, err := s.registry.End(gameID, requesterID)
	if err != nil {
		return room.Snapshot{}, err
	}
	s.finished(snap, EndReasonHost)
	return snap, nil
}

// ExpireGames ends games whose duration ran out and returns them.
func (s *GameService) ExpireGames() []room.Snapshot {
	ended := s.registry.ExpireDue()
	for _, snap := range ended {
		s.finished(snap, EndReasonExpired)
	}
	return ended
}

func (s *GameService) finished(snap room.Snapshot, reason string) {
	s.notifyAll(EventGameEnded, snap, EventPayload{Reason: reason})
	if s.archive == nil {
		return
	}
	if err := s.archive.Submit(models.FromSnapshot(snap)); err != nil {
		logger.Log.Errorw("archive submit failed", "game_id", snap.ID, "error", err)
	}
}

// GetGame returns a snapshot of the game.
func (s *GameService) GetGame(gameID string) (room.Snapshot, error) {
	g, ok := s.registry.Get(gameID)
	if !ok {
		return room.Snapshot{}, gameerr.ErrGameNotFound
	}
	return g.Snapshot(), nil
}

// GetGameByCode returns a snapshot of the game with the given join code.
func (s *GameService) GetGameByCode(code string) (room.Snapshot, error) {
	g, ok := s.registry.GetByCode(code)
	if !ok {
		return room.Snapshot{}, gameerr.ErrGameNotFound
	}
	return g.Snapshot(), nil
}

// ReportLocation screens a location report and stores it as the player's position in gameID.
// An empty gameID means the player's current game.
func (s *GameService) ReportLocation(playerID string, loc geo.Location, gameID string) (anticheat.Report, error) {
	var g *room.Game
	if gameID == "" {
		if cur, ok := s.registry.GameOf(playerID); ok {
			g = cur
			gameID = cur.ID()
		}
	} else if cur, ok := s.registry.Get(gameID); ok {
		g = cur
	}

	report, err := s.monitor.ValidateLocation(playerID, loc, gameID)
	if err != nil {
		return anticheat.Report{}, err
	}
	for _, v := range report.Violations {
		s.metrics.ObserveViolation(v.Type.String(), v.Severity.String())
	}

	if g != nil {
		if err := g.UpdateLocation(playerID, loc); err != nil {
			logger.Log.Debugw("location not stored", "player_id", playerID, "game_id", gameID, "error", err)
		}
	}
	return report, nil
}

// ValidateTagDistance is the stateless tag distance check.
func (s *GameService) ValidateTagDistance(tagger, target geo.Point, tagRadius float64) (bool, float64, error) {
	if tagRadius <= 0 {
		return false, 0, gameerr.ErrInvalidSettings
	}
	return s.protocol.ValidateDistance(tagger, target, tagRadius)
}

// UnflagPlayer clears a flag; false if the player was not flagged.
func (s *GameService) UnflagPlayer(playerID string) bool {
	ok := s.monitor.Unflag(playerID)
	if ok {
		logger.Log.Infow("player unflagged", "player_id", playerID)
	}
	return ok
}

func (s *GameService) Violations(playerID string) []anticheat.Violation {
	return s.monitor.Violations(playerID)
}

func (s *GameService) Flagged() []anticheat.FlaggedPlayer {
	return s.monitor.Flagged()
}

func (s *GameService) Stats() Stats {
	return Stats{Games: s.registry.Stats(), Anticheat: s.monitor.Stats()}
}

// PlayerHistory lists archived games of the player, newest first.
func (s *GameService) PlayerHistory(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.history.ListPlayerGames(ctx, playerID, limit)
}

// ArchivedGame loads one archived game.
func (s *GameService) ArchivedGame(ctx context.Context, gameID string) (models.GameRecord, error) {
	if s.history == nil {
		return models.GameRecord{}, ErrHistoryUnavailable
	}
	return s.history.LoadGameRecord(ctx, gameID)
}

// PlayerStats aggregates the player's archived games.
func (s *GameService) PlayerStats(ctx context.Context, playerID string) (models.PlayerStats, error) {
	if s.history == nil {
		return models.PlayerStats{}, ErrHistoryUnavailable
	}
	return s.history.GetPlayerStats(ctx, playerID)
}

// RefreshMetrics publishes registry and monitor gauges.
func (s *GameService) RefreshMetrics() {
	st := s.Stats()
	s.metrics.SetGames(st.Games.Waiting, st.Games.Active, st.Games.Ended)
	s.metrics.SetAnticheat(st.Anticheat.TrackedPlayers, st.Anticheat.FlaggedPlayers)
}
