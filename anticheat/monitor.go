// anticheat/monitor.go
package anticheat

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/tagserver/geo"
	"github.com/wfunc/tagserver/logger"
)

// minSegment 小于此距离(米)的位移不参与方向计算
const minSegment = 0.5

// Report is the outcome of one location report.
type Report struct {
	Violations []Violation `json:"violations"`
	Flagged    bool        `json:"flagged"`
	// NewlyFlagged is true only on the report that crossed the threshold.
	NewlyFlagged bool    `json:"newly_flagged,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
}

// TagCheck 抓人距离校验结果
type TagCheck struct {
	Valid         bool       `json:"valid"`
	Distance      float64    `json:"distance"`
	Allowed       float64    `json:"allowed"`
	Violation     *Violation `json:"violation,omitempty"`
	TaggerFlagged bool       `json:"tagger_flagged"`
}

// Stats 聚合统计
type Stats struct {
	TrackedPlayers int `json:"tracked_players"`
	FlaggedPlayers int `json:"flagged_players"`
}

// FlaggedPlayer is the moderation view of a flagged player.
type FlaggedPlayer struct {
	PlayerID      string    `json:"player_id"`
	GameID        string    `json:"game_id"`
	Violations    int       `json:"violations"`
	LastViolation time.Time `json:"last_violation"`
}

// ViolationHook is called outside any lock for every violation found.
type ViolationHook func(playerID string, v Violation)

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithViolationHook registers a callback for violations.
func WithViolationHook(hook ViolationHook) Option {
	return func(m *Monitor) { m.hook = hook }
}

type track struct {
	mu         sync.Mutex
	gameID     string
	samples    []Sample
	violations []Violation
	flagged    bool
	lastSeen   time.Time
	removed    bool
}

// Monitor 按玩家维护位置历史并判断移动是否可信
type Monitor struct {
	cfg     Config
	mu      sync.RWMutex
	players map[string]*track
	now     func() time.Time
	hook    ViolationHook
}

// NewMonitor creates a Monitor; zero config fields fall back to defaults.
func NewMonitor(cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:     cfg.withDefaults(),
		players: make(map[string]*track),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective thresholds.
func (m *Monitor) Config() Config {
	return m.cfg
}

// acquire returns the locked track for playerID, creating it on first use.
func (m *Monitor) acquire(playerID string) *track {
	for {
		m.mu.RLock()
		t, ok := m.players[playerID]
		m.mu.RUnlock()

		if !ok {
			m.mu.Lock()
			if t, ok = m.players[playerID]; !ok {
				t = &track{}
				m.players[playerID] = t
			}
			m.mu.Unlock()
		}

		t.mu.Lock()
		if !t.removed {
			return t
		}
		// 被清理协程移除，重新创建
		t.mu.Unlock()
	}
}

func (m *Monitor) lookup(playerID string) (*track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.players[playerID]
	return t, ok
}

// ValidateLocation screens one report. Structural problems return an error;
// plausibility problems are returned as violations.
func (m *Monitor) ValidateLocation(playerID string, loc geo.Location, gameID string) (Report, error) {
	if err := loc.Point.Validate(); err != nil {
		return Report{}, err
	}

	now := m.now()
	sample := Sample{Location: loc, ReceivedAt: now}

	t := m.acquire(playerID)
	report, newlyFlagged := m.evaluate(t, sample, gameID, now)
	t.mu.Unlock()

	if newlyFlagged {
		logger.Log.Warnw("player flagged by movement integrity monitor",
			"player_id", playerID, "game_id", gameID)
	}
	for _, v := range report.Violations {
		if v.Severity.Counts() {
			logger.Log.Warnw("movement violation",
				"player_id", playerID, "type", v.Type.String(), "severity", v.Severity.String(), "detail", v.Detail)
		}
		if m.hook != nil {
			m.hook(playerID, v)
		}
	}
	return report, nil
}

// evaluate runs with t.mu held.
func (m *Monitor) evaluate(t *track, s Sample, gameID string, now time.Time) (Report, bool) {
	if t.gameID != gameID {
		t.gameID = gameID
		t.samples = t.samples[:0]
		t.violations = t.violations[:0]
	}
	t.lastSeen = now

	var report Report
	add := func(typ ViolationType, sev Severity, detail string) {
		report.Violations = append(report.Violations, Violation{
			Type:      typ,
			Severity:  sev,
			Detail:    detail,
			Timestamp: now,
			Location:  s.Point,
		})
	}

	if n := len(t.samples); n > 0 {
		last := t.samples[n-1]
		elapsed := s.ReceivedAt.Sub(last.ReceivedAt)

		if elapsed < m.cfg.MinUpdateInterval {
			add(ViolationRapidUpdates, SeverityLow, fmt.Sprintf("update after %v", elapsed))
		}

		dist := geo.Distance(last.Point, s.Point)
		switch {
		case elapsed < m.cfg.TeleportWindow && dist > m.cfg.TeleportDistance:
			add(ViolationTeleport, SeverityHigh, fmt.Sprintf("moved %.0fm in %v", dist, elapsed))
		case elapsed > 0:
			speed := dist / elapsed.Seconds()
			report.Speed = speed
			if speed > m.cfg.MaxSpeed {
				sev := SeverityMedium
				if speed > 2*m.cfg.MaxSpeed {
					sev = SeverityHigh
				}
				add(ViolationSpeedHack, sev, fmt.Sprintf("speed %.1fm/s exceeds %.1fm/s", speed, m.cfg.MaxSpeed))
			}
		}
	}

	if s.Accuracy != nil && *s.Accuracy > m.cfg.MaxAccuracy {
		add(ViolationPoorAccuracy, SeverityInfo, fmt.Sprintf("accuracy %.0fm", *s.Accuracy))
	}

	if window := m.patternWindow(t, s); window != nil {
		if isLinear(window, m.cfg.LinearThreshold) {
			add(ViolationLinearMovement, SeverityMedium, "near-zero heading variance")
		}
		if repeats := maxRepeats(window); repeats >= m.cfg.StaticRepeats {
			add(ViolationStaticLocation, SeverityLow, fmt.Sprintf("%d identical coordinates", repeats))
		}
	}

	for _, v := range report.Violations {
		if v.Severity.Counts() {
			t.violations = append(t.violations, v)
		}
	}
	if over := len(t.violations) - m.cfg.ViolationLog; over > 0 {
		t.violations = append(t.violations[:0], t.violations[over:]...)
	}

	newlyFlagged := false
	if !t.flagged && m.recentCount(t, now) >= m.cfg.FlagThreshold {
		t.flagged = true
		newlyFlagged = true
	}
	report.Flagged = t.flagged
	report.NewlyFlagged = newlyFlagged

	t.samples = append(t.samples, s)
	if over := len(t.samples) - m.cfg.HistorySize; over > 0 {
		t.samples = append(t.samples[:0], t.samples[over:]...)
	}
	return report, newlyFlagged
}

// patternWindow returns the last PatternWindow points including s, or nil if too few.
func (m *Monitor) patternWindow(t *track, s Sample) []geo.Point {
	need := m.cfg.PatternWindow
	if len(t.samples)+1 < need {
		return nil
	}
	window := make([]geo.Point, 0, need)
	for _, prev := range t.samples[len(t.samples)-(need-1):] {
		window = append(window, prev.Point)
	}
	return append(window, s.Point)
}

func (m *Monitor) recentCount(t *track, now time.Time) int {
	cutoff := now.Add(-m.cfg.FlagWindow)
	count := 0
	for _, v := range t.violations {
		if v.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// isLinear reports whether the mean turning angle along pts is below threshold.
func isLinear(pts []geo.Point, threshold float64) bool {
	bearings := make([]float64, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		if geo.Distance(pts[i-1], pts[i]) < minSegment {
			return false
		}
		bearings = append(bearings, geo.Bearing(pts[i-1], pts[i]))
	}
	if len(bearings) < 2 {
		return false
	}
	total := 0.0
	for i := 1; i < len(bearings); i++ {
		total += geo.AngleDiff(bearings[i-1], bearings[i])
	}
	return total/float64(len(bearings)-1) < threshold
}

func maxRepeats(pts []geo.Point) int {
	counts := make(map[geo.Point]int, len(pts))
	best := 0
	for _, p := range pts {
		counts[p]++
		best = max(best, counts[p])
	}
	return best
}

// ValidateTag checks the tagger-target distance against the padded radius.
func (m *Monitor) ValidateTag(taggerID string, tagger, target geo.Point, tagRadius float64) TagCheck {
	distance := geo.Distance(tagger, target)
	allowed := tagRadius * m.cfg.TagTolerance
	check := TagCheck{
		Valid:         distance <= allowed,
		Distance:      distance,
		Allowed:       allowed,
		TaggerFlagged: m.IsFlagged(taggerID),
	}
	if !check.Valid {
		check.Violation = &Violation{
			Type:      ViolationDistanceHack,
			Severity:  SeverityHigh,
			Detail:    fmt.Sprintf("tag at %.1fm exceeds %.1fm", distance, allowed),
			Timestamp: m.now(),
			Location:  tagger,
		}
	}
	return check
}

// IsFlagged reports whether the player is currently flagged.
func (m *Monitor) IsFlagged(playerID string) bool {
	t, ok := m.lookup(playerID)
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flagged
}

// Unflag clears the flag and the violation log. Unflagged players are left untouched.
func (m *Monitor) Unflag(playerID string) bool {
	t, ok := m.lookup(playerID)
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.flagged {
		return false
	}
	t.flagged = false
	t.violations = t.violations[:0]
	logger.Log.Infow("player unflagged", "player_id", playerID)
	return true
}

// Violations returns a copy of the player's logged violations, oldest first.
func (m *Monitor) Violations(playerID string) []Violation {
	t, ok := m.lookup(playerID)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Violation, len(t.violations))
	copy(out, t.violations)
	return out
}

// History returns a copy of the player's sample ring, oldest first.
func (m *Monitor) History(playerID string) []Sample {
	t, ok := m.lookup(playerID)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	return out
}

// Flagged lists flagged players sorted by id.
func (m *Monitor) Flagged() []FlaggedPlayer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []FlaggedPlayer
	for id, t := range m.players {
		t.mu.Lock()
		if t.flagged {
			fp := FlaggedPlayer{PlayerID: id, GameID: t.gameID, Violations: len(t.violations)}
			if n := len(t.violations); n > 0 {
				fp.LastViolation = t.violations[n-1].Timestamp
			}
			out = append(out, fp)
		}
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Stats returns aggregate counts.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TrackedPlayers: len(m.players)}
	for _, t := range m.players {
		t.mu.Lock()
		if t.flagged {
			stats.FlaggedPlayers++
		}
		t.mu.Unlock()
	}
	return stats
}

// Cleanup drops histories idle for longer than IdleTimeout and returns how many were removed.
func (m *Monitor) Cleanup() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, t := range m.players {
		t.mu.Lock()
		if !t.lastSeen.After(cutoff) {
			t.removed = true
			delete(m.players, id)
			removed++
		}
		t.mu.Unlock()
	}
	return removed
}
