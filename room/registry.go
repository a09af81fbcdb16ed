// room/registry.go
package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/tagserver/gameerr"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/state"
)

const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultRetention 已结束游戏的保留时长
const DefaultRetention = 24 * time.Hour

// LeaveResult 离开游戏的结果
type LeaveResult struct {
	Game    Snapshot
	Deleted bool
	// ItReassigned is set when the leaving player was IT and a replacement was picked.
	ItReassigned bool
}

// Stats counts live games by status.
type Stats struct {
	Games   int
	Waiting int
	Active  int
	Ended   int
	Players int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithPicker overrides the random IT picker; intn(n) must return [0, n).
func WithPicker(intn func(int) int) Option {
	return func(r *Registry) { r.intn = intn }
}

// WithCodeGenerator overrides join-code generation.
func WithCodeGenerator(gen func() string) Option {
	return func(r *Registry) { r.newCode = gen }
}

// Registry owns all live games. Lock order is Game.mu before Registry.mu.
type Registry struct {
	mu       sync.RWMutex
	games    map[string]*Game  // id -> game
	byCode   map[string]string // code -> id
	byPlayer map[string]string // player id -> game id

	now     func() time.Time
	intn    func(int) int
	newCode func() string
}

// NewRegistry 创建一个新的游戏注册表
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		games:    make(map[string]*Game),
		byCode:   make(map[string]string),
		byPlayer: make(map[string]string),
		now:      time.Now,
		intn:     mrand.IntN,
		newCode:  func() string { return generateCode(CodeLength) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func generateCode(n int) string {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b[i] = codeChars[mrand.IntN(len(codeChars))]
			continue
		}
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}

func (r *Registry) assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("room registry invariant violated: "+format, args...))
	}
}

// Create makes a waiting game with host as its only player.
func (r *Registry) Create(host Player, settings Settings) (Snapshot, error) {
	if err := settings.Validate(); err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.byPlayer[host.ID]; busy {
		return Snapshot{}, gameerr.ErrAlreadyInOtherGame
	}

	code := r.newCode()
	for _, taken := r.byCode[code]; taken; _, taken = r.byCode[code] {
		code = r.newCode()
	}

	g := newGame(uuid.New().String(), code, host, settings, r.now, r.intn)
	// 注册前拍快照，之后再锁 g.mu 会违反锁顺序
	snap := g.snapshot()
	r.games[g.id] = g
	r.byCode[code] = g.id
	r.byPlayer[host.ID] = g.id

	logger.Log.Infow("game created", "game_id", g.id, "code", code, "host_id", host.ID)
	return snap, nil
}

// Get resolves a game by id.
func (r *Registry) Get(id string) (*Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	return g, ok
}

// GetByCode resolves a game by join code.
func (r *Registry) GetByCode(code string) (*Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, false
	}
	g, ok := r.games[id]
	r.assertf(ok, "code %s points at missing game %s", code, id)
	return g, true
}

// GameOf resolves the live game a player is in.
func (r *Registry) GameOf(playerID string) (*Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	g, ok := r.games[id]
	r.assertf(ok, "player %s points at missing game %s", playerID, id)
	return g, true
}

// Join adds player to the waiting game with the given code.
func (r *Registry) Join(code string, player Player) (Snapshot, error) {
	g, ok := r.GetByCode(code)
	if !ok {
		return Snapshot{}, gameerr.ErrGameNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removed {
		return Snapshot{}, gameerr.ErrGameNotFound
	}

	if _, present := g.find(player.ID); present != nil && g.status() != state.Ended {
		return g.snapshot(), nil
	}
	if g.status() != state.Waiting {
		return Snapshot{}, fmt.Errorf("%w: game is %s", gameerr.ErrNotJoinable, g.status())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if other, busy := r.byPlayer[player.ID]; busy && other != g.id {
		return Snapshot{}, gameerr.ErrAlreadyInOtherGame
	}
	if len(g.players) >= g.settings.MaxPlayers {
		return Snapshot{}, gameerr.ErrGameFull
	}

	g.addPlayer(player)
	r.byPlayer[player.ID] = g.id

	logger.Log.Infow("player joined", "game_id", g.id, "player_id", player.ID, "players", len(g.players))
	return g.snapshot(), nil
}

// Leave removes the player from their current game, deleting the game once empty.
func (r *Registry) Leave(playerID string) (LeaveResult, error) {
	g, ok := r.GameOf(playerID)
	if !ok {
		return LeaveResult{}, gameerr.ErrPlayerNotInGame
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removed {
		return LeaveResult{}, gameerr.ErrGameNotFound
	}
	if _, p := g.find(playerID); p == nil {
		// 在锁外换了游戏
		return LeaveResult{}, gameerr.ErrPlayerNotInGame
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.assertf(r.byPlayer[playerID] == g.id, "player %s indexed to %q, roster says %s", playerID, r.byPlayer[playerID], g.id)
	empty, reassigned := g.removePlayer(playerID)
	delete(r.byPlayer, playerID)

	logger.Log.Infow("player left", "game_id", g.id, "player_id", playerID, "players", len(g.players))
	if empty {
		r.dropLocked(g)
		logger.Log.Infow("game deleted", "game_id", g.id, "reason", "empty")
	}
	return LeaveResult{Game: g.snapshot(), Deleted: empty, ItReassigned: reassigned}, nil
}

// Start starts the game on behalf of requesterID.
func (r *Registry) Start(gameID, requesterID string) (Snapshot, error) {
	g, ok := r.Get(gameID)
	if !ok {
		return Snapshot{}, gameerr.ErrGameNotFound
	}
	return g.Start(requesterID)
}

// Tag routes a tag attempt to the game.
func (r *Registry) Tag(gameID, taggerID, targetID string, judge TagJudge) (TagOutcome, error) {
	g, ok := r.Get(gameID)
	if !ok {
		return TagOutcome{}, gameerr.ErrGameNotFound
	}
	return g.Tag(taggerID, targetID, judge)
}

// End ends an active game on behalf of its host.
func (r *Registry) End(gameID, requesterID string) (Snapshot, error) {
	g, ok := r.Get(gameID)
	if !ok {
		return Snapshot{}, gameerr.ErrGameNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removed {
		return Snapshot{}, gameerr.ErrGameNotFound
	}
	if requesterID != g.hostID {
		return Snapshot{}, gameerr.ErrNotHost
	}
	return r.endLocked(g)
}

// endLocked finishes g and clears its player index entries. Caller holds g.mu.
func (r *Registry) endLocked(g *Game) (Snapshot, error) {
	if err := g.finish(); err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	for _, p := range g.players {
		r.assertf(r.byPlayer[p.ID] == g.id, "player %s indexed to %q at end of %s", p.ID, r.byPlayer[p.ID], g.id)
		delete(r.byPlayer, p.ID)
	}
	r.mu.Unlock()

	return g.snapshot(), nil
}

// dropLocked removes g from the id and code indices. Caller holds g.mu and r.mu.
func (r *Registry) dropLocked(g *Game) {
	r.assertf(r.byCode[g.code] == g.id, "code %s indexed to %q, expected %s", g.code, r.byCode[g.code], g.id)
	delete(r.games, g.id)
	delete(r.byCode, g.code)
	g.removed = true
}

func (r *Registry) all() []*Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	games := make([]*Game, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	return games
}

// ExpireDue ends active games whose configured duration has run out.
func (r *Registry) ExpireDue() []Snapshot {
	var ended []Snapshot
	for _, g := range r.all() {
		g.mu.Lock()
		due := !g.removed && g.status() == state.Active && g.settings.Duration > 0 &&
			!r.now().Before(g.startedAt.Add(g.settings.Duration))
		if due {
			if snap, err := r.endLocked(g); err == nil {
				ended = append(ended, snap)
				logger.Log.Infow("game expired", "game_id", g.id, "duration", g.settings.Duration)
			}
		}
		g.mu.Unlock()
	}
	return ended
}

// Sweep deletes ended games older than retention and returns how many were removed.
func (r *Registry) Sweep(retention time.Duration) int {
	if retention <= 0 {
		retention = DefaultRetention
	}
	removed := 0
	for _, g := range r.all() {
		g.mu.Lock()
		if !g.removed && g.status() == state.Ended && r.now().Sub(g.endedAt) >= retention {
			r.mu.Lock()
			r.dropLocked(g)
			r.mu.Unlock()
			removed++
		}
		g.mu.Unlock()
	}
	return removed
}

// Stats counts games by status.
func (r *Registry) Stats() Stats {
	var s Stats
	for _, g := range r.all() {
		g.mu.Lock()
		if !g.removed {
			s.Games++
			switch g.status() {
			case state.Waiting:
				s.Waiting++
				s.Players += len(g.players)
			case state.Active:
				s.Active++
				s.Players += len(g.players)
			case state.Ended:
				s.Ended++
			}
		}
		g.mu.Unlock()
	}
	return s
}
