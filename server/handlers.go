package server

import (
	"encoding/json"

	"github.com/wfunc/tagserver/gameerr"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/models"
	"github.com/wfunc/tagserver/network"
	"github.com/wfunc/tagserver/room"
	"github.com/wfunc/tagserver/session"
)

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
	case network.MsgTypeCreateGame:
		s.handleCreateGame(sess, packet)
	case network.MsgTypeJoinGame:
		s.handleJoinGame(sess, packet)
	case network.MsgTypeLeaveGame:
		s.handleLeaveGame(sess, packet)
	case network.MsgTypeStartGame:
		s.handleStartGame(sess, packet)
	case network.MsgTypeEndGame:
		s.handleEndGame(sess, packet)
	case network.MsgTypeGetGame:
		s.handleGetGame(sess, packet)
	case network.MsgTypeTag:
		s.handleTag(sess, packet)
	case network.MsgTypeLocation:
		s.handleLocation(sess, packet)
	case network.MsgTypeCheckTag:
		s.handleCheckTag(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func player(sess *session.Session) room.Player {
	return room.Player{ID: sess.PlayerID, Name: sess.Name, Avatar: sess.Avatar}
}

// decode 空包体视为空请求
func decode(packet *network.Packet, v interface{}) error {
	if len(packet.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(packet.Data, v); err != nil {
		return errMalformedRequest
	}
	return nil
}

func (s *GameServer) reply(sess *session.Session, msgID uint16, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorw("marshal reply failed", "msg_id", msgID, "error", err)
		return
	}
	if err := sess.Send(msgID, data); err != nil {
		logger.Log.Debugw("reply failed", "session_id", sess.GetID(), "msg_id", msgID, "error", err)
	}
}

func (s *GameServer) replyError(sess *session.Session, request uint16, err error) {
	resp := toErrorResponse(err)
	resp.Request = request
	s.reply(sess, network.MsgTypeError, resp)
}

func (s *GameServer) replyGame(sess *session.Session, snap room.Snapshot) {
	rec := models.FromSnapshot(snap)
	s.reply(sess, network.MsgTypeGameState, &rec)
}

// currentGame resolves an omitted game id to the sender's live game.
func (s *GameServer) currentGame(sess *session.Session, gameID string) (string, error) {
	if gameID != "" {
		return gameID, nil
	}
	g, ok := s.game.Registry().GameOf(sess.PlayerID)
	if !ok {
		return "", gameerr.ErrPlayerNotInGame
	}
	return g.ID(), nil
}

func (s *GameServer) handleCreateGame(sess *session.Session, packet *network.Packet) {
	var req createGameRequest
	if err := decode(packet, &req); err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	snap, err := s.game.CreateGame(player(sess), req.Settings.apply(s.defaults))
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	logger.Log.Infof("Session %s created game %s (%s)", sess.GetID(), snap.ID, snap.Code)
	s.replyGame(sess, snap)
}

func (s *GameServer) handleJoinGame(sess *session.Session, packet *network.Packet) {
	var req joinGameRequest
	if err := decode(packet, &req); err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	snap, err := s.game.JoinGame(req.Code, player(sess))
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	logger.Log.Infof("Session %s joined game %s", sess.GetID(), snap.ID)
	s.replyGame(sess, snap)
}

func (s *GameServer) handleLeaveGame(sess *session.Session, packet *network.Packet) {
	res, err := s.game.LeaveGame(sess.PlayerID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	resp := leaveResponse{Deleted: res.Deleted}
	if !res.Deleted {
		rec := models.FromSnapshot(res.Game)
		resp.Game = &rec
	}
	s.reply(sess, network.MsgTypeLeaveResult, resp)
}

func (s *GameServer) handleStartGame(sess *session.Session, packet *network.Packet) {
	var req gameRequest
	if err := decode(packet, &req); err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	gameID, err := s.currentGame(sess, req.GameID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	snap, err := s.game.StartGame(gameID, sess.PlayerID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	s.replyGame(sess, snap)
}

func (s *GameServer) handleEndGame(sess *session.Session, packet *network.Packet) {
	var req gameRequest
	if err := decode(packet, &req); err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	gameID, err := s.currentGame(sess, req.GameID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	snap, err := s.game.EndGame(gameID, sess.PlayerID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	s.replyGame(sess, snap)
}

func (s *GameServer) handleGetGame(sess *session.Session, packet *network.Packet) {
	var req gameRequest
	if err := decode(packet, &req); err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	gameID, err := s.currentGame(sess, req.GameID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	snap, err := s.game.GetGame(gameID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	s.replyGame(sess, snap)
}

func (s *GameServer) handleTag(sess *session.Session, packet *network.Packet) {
	var req tagRequest
	if err := decode(packet, &req); err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	gameID, err := s.currentGame(sess, req.GameID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	out, err := s.game.TagPlayer(gameID, sess.PlayerID, req.TargetID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	rec := models.FromSnapshot(out.Game)
	resp := tagResponse{
		Game:          &rec,
		Tag:           rec.Tags[len(rec.Tags)-1],
		TaggerFlagged: out.Verdict.TaggerFlagged,
	}
	if out.TagTime != nil {
		ms := out.TagTime.Milliseconds()
		resp.TagTimeMs = &ms
	}
	s.reply(sess, network.MsgTypeTagResult, resp)
}

func (s *GameServer) handleLocation(sess *session.Session, packet *network.Packet) {
	var req locationRequest
	if err := decode(packet, &req); err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	report, err := s.game.ReportLocation(sess.PlayerID, req.location(), req.GameID)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	s.reply(sess, network.MsgTypeLocationResult, locationResponse{GameID: req.GameID, Report: report})
}

func (s *GameServer) handleCheckTag(sess *session.Session, packet *network.Packet) {
	var req checkTagRequest
	if err := decode(packet, &req); err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	valid, distance, err := s.game.ValidateTagDistance(req.Tagger, req.Target, req.Radius)
	if err != nil {
		s.replyError(sess, packet.MsgID, err)
		return
	}
	s.reply(sess, network.MsgTypeCheckTagResult, checkTagResponse{Valid: valid, Distance: distance})
}
