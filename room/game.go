// room/game.go
package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/tagserver/gameerr"
	"github.com/wfunc/tagserver/geo"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/state"
)

// Player 玩家身份
type Player struct {
	ID     string
	Name   string
	Avatar string
}

// PlayerInGame is a roster entry. It belongs to exactly one Game.
type PlayerInGame struct {
	Player
	Location   *geo.Location
	IsIt       bool
	JoinedAt   time.Time
	TagCount   int
	BecameItAt *time.Time
	// TimeAsIt accumulates completed IT stints.
	TimeAsIt          time.Duration
	SurvivalTime      time.Duration
	FinalSurvivalTime *time.Duration
}

// TagRecord is immutable once appended to the ledger.
type TagRecord struct {
	ID        string
	TaggerID  string
	TaggedID  string
	Timestamp time.Time
	// TagTime is how long the tagger had been IT; nil if unknown.
	TagTime  *time.Duration
	Location geo.Point
	Distance float64
}

// TagAttempt is what a TagJudge decides on.
type TagAttempt struct {
	GameID   string
	TaggerID string
	TargetID string
	Tagger   geo.Point
	Target   geo.Point
	Settings Settings
	At       time.Time
}

// TagVerdict describes an accepted attempt.
type TagVerdict struct {
	Distance      float64
	TaggerFlagged bool
}

// TagJudge decides whether a tag attempt is legal.
type TagJudge interface {
	Judge(attempt TagAttempt) (TagVerdict, error)
}

// TagOutcome 抓人成功后的结果
type TagOutcome struct {
	Game    Snapshot
	Record  TagRecord
	TagTime *time.Duration
	Verdict TagVerdict
}

// Game 是一局游戏的核心结构，所有修改都在 mu 下完成
type Game struct {
	mu         sync.Mutex
	id         string
	code       string
	hostID     string
	settings   Settings
	machine    *state.Machine
	players    []*PlayerInGame
	itPlayerID string
	createdAt  time.Time
	startedAt  time.Time
	endedAt    time.Time
	tags       []TagRecord
	winnerID   string
	winnerName string
	// removed is set once the registry has dropped this game.
	removed bool

	now  func() time.Time
	intn func(int) int
}

func newGame(id, code string, host Player, settings Settings, now func() time.Time, intn func(int) int) *Game {
	createdAt := now()
	g := &Game{
		id:        id,
		code:      code,
		hostID:    host.ID,
		settings:  settings.clone(),
		machine:   state.NewGameMachine(),
		players:   []*PlayerInGame{{Player: host, JoinedAt: createdAt}},
		createdAt: createdAt,
		now:       now,
		intn:      intn,
	}
	_ = g.machine.SetGuard(state.Waiting, state.Active, func() error {
		if len(g.players) < MinPlayers {
			return gameerr.ErrNotEnoughPlayers
		}
		return nil
	})
	g.machine.OnEnter(state.Active, func() {
		logger.Log.Infow("game started", "game_id", g.id, "players", len(g.players))
	})
	g.machine.OnEnter(state.Ended, func() {
		logger.Log.Infow("game ended", "game_id", g.id, "winner_id", g.winnerID)
	})
	return g
}

// ID returns the game id.
func (g *Game) ID() string { return g.id }

// Code returns the join code.
func (g *Game) Code() string { return g.code }

func (g *Game) find(playerID string) (int, *PlayerInGame) {
	for i, p := range g.players {
		if p.ID == playerID {
			return i, p
		}
	}
	return -1, nil
}

func (g *Game) status() state.Status {
	return g.machine.Current()
}

// Status returns the lifecycle status.
func (g *Game) Status() state.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status()
}

// Snapshot returns a deep copy of the game.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot()
}

// Start picks IT uniformly at random and activates the game.
func (g *Game) Start(requesterID string) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.removed {
		return Snapshot{}, gameerr.ErrGameNotFound
	}
	if requesterID != g.hostID {
		return Snapshot{}, gameerr.ErrNotHost
	}
	if err := g.machine.ChangeState(state.Active); err != nil {
		if errors.Is(err, state.ErrTransitionNotAllowed) {
			return Snapshot{}, fmt.Errorf("%w: game is %s", gameerr.ErrNotStartable, g.status())
		}
		return Snapshot{}, err
	}

	now := g.now()
	g.startedAt = now
	it := g.players[g.intn(len(g.players))]
	g.makeIt(it, now)
	return g.snapshot(), nil
}

func (g *Game) makeIt(p *PlayerInGame, now time.Time) {
	at := now
	p.IsIt = true
	p.BecameItAt = &at
	g.itPlayerID = p.ID
}

// releaseIt closes p's IT stint and returns its length, if known.
func (g *Game) releaseIt(p *PlayerInGame, now time.Time) *time.Duration {
	var stint *time.Duration
	if p.BecameItAt != nil {
		d := now.Sub(*p.BecameItAt)
		p.TimeAsIt += d
		stint = &d
	}
	p.IsIt = false
	p.BecameItAt = nil
	return stint
}

// Tag applies a tag from the current IT to target once judge accepts it.
func (g *Game) Tag(taggerID, targetID string, judge TagJudge) (TagOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.removed {
		return TagOutcome{}, gameerr.ErrGameNotFound
	}
	if g.status() != state.Active {
		return TagOutcome{}, fmt.Errorf("%w: game is %s", gameerr.ErrNotActive, g.status())
	}
	_, tagger := g.find(taggerID)
	if tagger == nil {
		return TagOutcome{}, gameerr.ErrPlayerNotInGame
	}
	if taggerID != g.itPlayerID {
		return TagOutcome{}, gameerr.ErrNotIt
	}
	if taggerID == targetID {
		return TagOutcome{}, gameerr.ErrSelfTag
	}
	_, target := g.find(targetID)
	if target == nil {
		return TagOutcome{}, gameerr.ErrPlayerNotInGame
	}
	if tagger.Location == nil {
		return TagOutcome{}, fmt.Errorf("%w: tagger", gameerr.ErrLocationUnavailable)
	}
	if target.Location == nil {
		return TagOutcome{}, fmt.Errorf("%w: target", gameerr.ErrLocationUnavailable)
	}

	now := g.now()
	verdict, err := judge.Judge(TagAttempt{
		GameID:   g.id,
		TaggerID: taggerID,
		TargetID: targetID,
		Tagger:   tagger.Location.Point,
		Target:   target.Location.Point,
		Settings: g.settings,
		At:       now,
	})
	if err != nil {
		return TagOutcome{}, err
	}

	tagTime := g.releaseIt(tagger, now)
	tagger.TagCount++
	g.makeIt(target, now)

	record := TagRecord{
		ID:        uuid.New().String(),
		TaggerID:  taggerID,
		TaggedID:  targetID,
		Timestamp: now,
		TagTime:   tagTime,
		Location:  target.Location.Point,
		Distance:  verdict.Distance,
	}
	g.tags = append(g.tags, record)

	return TagOutcome{
		Game:    g.snapshot(),
		Record:  record,
		TagTime: tagTime,
		Verdict: verdict,
	}, nil
}

// UpdateLocation stores the player's latest accepted location.
func (g *Game) UpdateLocation(playerID string, loc geo.Location) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.removed {
		return gameerr.ErrGameNotFound
	}
	_, p := g.find(playerID)
	if p == nil {
		return gameerr.ErrPlayerNotInGame
	}
	l := loc
	p.Location = &l
	return nil
}

// addPlayer appends p; the caller holds g.mu and has checked capacity.
func (g *Game) addPlayer(p Player) {
	g.players = append(g.players, &PlayerInGame{Player: p, JoinedAt: g.now()})
}

// removePlayer drops playerID and hands over host and IT roles.
// It reports whether the roster is now empty and whether a new IT was picked.
func (g *Game) removePlayer(playerID string) (empty, reassigned bool) {
	idx, p := g.find(playerID)
	if p == nil {
		return len(g.players) == 0, false
	}
	g.players = append(g.players[:idx], g.players[idx+1:]...)

	if len(g.players) == 0 {
		return true, false
	}
	if g.hostID == playerID {
		g.hostID = g.players[0].ID
		logger.Log.Infow("host transferred", "game_id", g.id, "host_id", g.hostID)
	}
	if g.status() == state.Active && g.itPlayerID == playerID {
		now := g.now()
		g.releaseIt(p, now)
		g.makeIt(g.players[g.intn(len(g.players))], now)
		logger.Log.Infow("IT left, reassigned", "game_id", g.id, "it_player_id", g.itPlayerID)
		reassigned = true
	}
	return false, reassigned
}

// finish computes survival times and the winner, then moves to ended. Caller holds g.mu.
func (g *Game) finish() error {
	if g.status() != state.Active {
		return fmt.Errorf("%w: game is %s", gameerr.ErrNotActive, g.status())
	}

	now := g.now()
	duration := now.Sub(g.startedAt)
	finalIt := g.itPlayerID

	var winner *PlayerInGame
	for _, p := range g.players {
		if p.IsIt {
			g.releaseIt(p, now)
		}
		p.SurvivalTime = max(0, duration-p.TimeAsIt)
		final := p.SurvivalTime
		if p.ID == finalIt {
			final = 0
		}
		p.FinalSurvivalTime = &final

		if p.ID == finalIt {
			continue
		}
		// 相同生存时间时先加入者胜
		if winner == nil || final > *winner.FinalSurvivalTime ||
			(final == *winner.FinalSurvivalTime && p.JoinedAt.Before(winner.JoinedAt)) {
			winner = p
		}
	}
	if winner != nil {
		g.winnerID = winner.ID
		g.winnerName = winner.Name
	}

	g.endedAt = now
	return g.machine.ChangeState(state.Ended)
}

func (g *Game) snapshot() Snapshot {
	s := Snapshot{
		ID:         g.id,
		Code:       g.code,
		HostID:     g.hostID,
		Status:     g.status(),
		Settings:   g.settings.clone(),
		ItPlayerID: g.itPlayerID,
		CreatedAt:  g.createdAt,
		WinnerID:   g.winnerID,
		WinnerName: g.winnerName,
		Players:    make([]PlayerInGame, len(g.players)),
		Tags:       append([]TagRecord(nil), g.tags...),
	}
	for i, p := range g.players {
		s.Players[i] = p.clone()
		if p.ID == g.hostID {
			s.HostName = p.Name
		}
	}
	if !g.startedAt.IsZero() {
		started := g.startedAt
		s.StartedAt = &started
		end := g.now()
		if !g.endedAt.IsZero() {
			ended := g.endedAt
			s.EndedAt = &ended
			end = ended
		}
		s.Duration = end.Sub(started)
	}
	return s
}

func (p *PlayerInGame) clone() PlayerInGame {
	out := *p
	if p.Location != nil {
		l := *p.Location
		out.Location = &l
	}
	if p.BecameItAt != nil {
		t := *p.BecameItAt
		out.BecameItAt = &t
	}
	if p.FinalSurvivalTime != nil {
		d := *p.FinalSurvivalTime
		out.FinalSurvivalTime = &d
	}
	return out
}
