// gameerr/errors.go
package gameerr

import (
	"errors"
	"fmt"
)

// Kind 错误类别，调用方据此决定如何向玩家解释失败原因
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindWrongState
	KindUnauthorized
	KindCapacity
	KindConflict
	KindOutOfRange
	KindRuleRestricted
	KindDataUnavailable
	KindStructuralInvalid
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindNotFound:          "not_found",
	KindWrongState:        "wrong_state",
	KindUnauthorized:      "unauthorized",
	KindCapacity:          "capacity",
	KindConflict:          "conflict",
	KindOutOfRange:        "out_of_range",
	KindRuleRestricted:    "rule_restricted",
	KindDataUnavailable:   "data_unavailable",
	KindStructuralInvalid: "structural_invalid",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Error is an expected, caller-facing failure.
type Error struct {
	Kind   Kind
	Reason string
	// Distance is the measured tag distance in meters; only set for KindOutOfRange.
	Distance float64
	// Allowed is the padded radius the distance was compared against.
	Allowed float64
}

func (e *Error) Error() string {
	if e.Kind == KindOutOfRange && e.Distance > 0 {
		return fmt.Sprintf("%s: %s (%.1fm > %.1fm)", e.Kind, e.Reason, e.Distance, e.Allowed)
	}
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

// Is matches on Kind, and on Reason when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// New creates an error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// OutOfRange builds a tag-distance rejection carrying the measured distance.
func OutOfRange(distance, allowed float64) *Error {
	return &Error{Kind: KindOutOfRange, Reason: ErrOutOfRange.Reason, Distance: distance, Allowed: allowed}
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// 按类别匹配的哨兵错误
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrWrongState        = &Error{Kind: KindWrongState}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrCapacity          = &Error{Kind: KindCapacity}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrRuleRestricted    = &Error{Kind: KindRuleRestricted}
	ErrDataUnavailable   = &Error{Kind: KindDataUnavailable}
	ErrStructuralInvalid = &Error{Kind: KindStructuralInvalid}
)

// 具体原因
var (
	ErrGameNotFound        = New(KindNotFound, "game_not_found")
	ErrPlayerNotInGame     = New(KindNotFound, "player_not_in_game")
	ErrNotStartable        = New(KindWrongState, "not_waiting")
	ErrNotActive           = New(KindWrongState, "not_active")
	ErrNotJoinable         = New(KindWrongState, "not_joinable")
	ErrSelfTag             = New(KindWrongState, "self_tag")
	ErrNotEnoughPlayers    = New(KindWrongState, "not_enough_players")
	ErrNotHost             = New(KindUnauthorized, "not_host")
	ErrNotIt               = New(KindUnauthorized, "not_it")
	ErrGameFull            = New(KindCapacity, "game_full")
	ErrAlreadyInOtherGame  = New(KindConflict, "already_in_other_game")
	ErrOutOfRange          = New(KindOutOfRange, "target_out_of_range")
	ErrSafeZone            = New(KindRuleRestricted, "safe_zone")
	ErrQuietHours          = New(KindRuleRestricted, "quiet_hours")
	ErrLocationUnavailable = New(KindDataUnavailable, "location_unavailable")
	ErrInvalidCoordinate   = New(KindStructuralInvalid, "invalid_coordinate")
	ErrInvalidSettings     = New(KindStructuralInvalid, "invalid_settings")
)
