// tagging/protocol.go
package tagging

import (
	"fmt"
	"time"

	"github.com/wfunc/tagserver/anticheat"
	"github.com/wfunc/tagserver/gameerr"
	"github.com/wfunc/tagserver/geo"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/room"
)

// DistanceChecker 负责距离判定和标记查询，通常是 *anticheat.Monitor
type DistanceChecker interface {
	ValidateTag(taggerID string, tagger, target geo.Point, tagRadius float64) anticheat.TagCheck
}

// Protocol decides tag legality: distance, then safe zones, then quiet hours.
type Protocol struct {
	checker DistanceChecker
	loc     *time.Location
}

// NewProtocol evaluates quiet hours in loc; nil means UTC.
func NewProtocol(checker DistanceChecker, loc *time.Location) *Protocol {
	if loc == nil {
		loc = time.UTC
	}
	return &Protocol{checker: checker, loc: loc}
}

// Judge implements room.TagJudge.
func (p *Protocol) Judge(a room.TagAttempt) (room.TagVerdict, error) {
	check := p.checker.ValidateTag(a.TaggerID, a.Tagger, a.Target, a.Settings.TagRadius)
	if !check.Valid {
		logger.Log.Debugw("tag rejected", "game_id", a.GameID, "tagger_id", a.TaggerID,
			"target_id", a.TargetID, "distance", check.Distance, "allowed", check.Allowed)
		return room.TagVerdict{}, gameerr.OutOfRange(check.Distance, check.Allowed)
	}

	if zone, ok := geo.FindSafeZone(a.Tagger, a.Settings.SafeZones); ok {
		return room.TagVerdict{}, fmt.Errorf("%w: tagger inside zone %s", gameerr.ErrSafeZone, zone.Name)
	}
	if zone, ok := geo.FindSafeZone(a.Target, a.Settings.SafeZones); ok {
		return room.TagVerdict{}, fmt.Errorf("%w: target inside zone %s", gameerr.ErrSafeZone, zone.Name)
	}

	if geo.InQuietHours(a.At.In(p.loc), a.Settings.QuietHours) {
		return room.TagVerdict{}, gameerr.ErrQuietHours
	}

	if check.TaggerFlagged {
		logger.Log.Warnw("flagged player tagged", "game_id", a.GameID, "tagger_id", a.TaggerID, "target_id", a.TargetID)
	}
	return room.TagVerdict{Distance: check.Distance, TaggerFlagged: check.TaggerFlagged}, nil
}

// ValidateDistance is the stateless distance check exposed as validateTagDistance.
func (p *Protocol) ValidateDistance(tagger, target geo.Point, tagRadius float64) (bool, float64, error) {
	if err := tagger.Validate(); err != nil {
		return false, 0, err
	}
	if err := target.Validate(); err != nil {
		return false, 0, err
	}
	check := p.checker.ValidateTag("", tagger, target, tagRadius)
	return check.Valid, check.Distance, nil
}
