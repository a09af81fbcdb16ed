package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/models"
)

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// Router builds the HTTP routes; /ws is the player socket.
func (s *GameServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	r.HandleFunc("/games/{id}", s.handleGetGameHTTP).Methods("GET")
	r.HandleFunc("/games/{code}/qr", s.handleJoinQR).Methods("GET")
	r.HandleFunc("/tags/validate", s.handleValidateTag).Methods("POST")
	r.HandleFunc("/stats", s.handleStats).Methods("GET")

	r.HandleFunc("/moderation/flagged", s.handleFlagged).Methods("GET")
	r.HandleFunc("/moderation/players/{id}/violations", s.handleViolations).Methods("GET")

	r.HandleFunc("/players/{id}/history", s.handleHistory).Methods("GET")
	r.HandleFunc("/players/{id}/stats", s.handlePlayerStats).Methods("GET")
	r.HandleFunc("/archive/games/{id}", s.handleArchivedGame).Methods("GET")
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debugw("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "error", err)
	}
	writeJSON(w, status, toErrorResponse(err))
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessionManager.Count(),
	})
}

func (s *GameServer) handleGetGameHTTP(w http.ResponseWriter, r *http.Request) {
	snap, err := s.game.GetGame(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.FromSnapshot(snap))
}

// handleJoinQR renders the join code of a live game as a PNG.
func (s *GameServer) handleJoinQR(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(mux.Vars(r)["code"])
	snap, err := s.game.GetGameByCode(code)
	if err != nil {
		writeError(w, err)
		return
	}

	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			writeError(w, errMalformedRequest)
			return
		}
		size = n
	}

	png, err := qrcode.Encode(s.joinURL+snap.Code, qrcode.Medium, size)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *GameServer) handleValidateTag(w http.ResponseWriter, r *http.Request) {
	var req checkTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errMalformedRequest)
		return
	}
	valid, distance, err := s.game.ValidateTagDistance(req.Tagger, req.Target, req.Radius)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkTagResponse{Valid: valid, Distance: distance})
}

func (s *GameServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Stats())
}

func (s *GameServer) handleFlagged(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Flagged())
}

func (s *GameServer) handleViolations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Violations(mux.Vars(r)["id"]))
}

func (s *GameServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, errMalformedRequest)
			return
		}
		limit = n
	}
	games, err := s.game.PlayerHistory(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if games == nil {
		games = []models.GameRecord{}
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *GameServer) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.game.PlayerStats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *GameServer) handleArchivedGame(w http.ResponseWriter, r *http.Request) {
	rec, err := s.game.ArchivedGame(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
