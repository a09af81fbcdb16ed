// anticheat/violation.go
package anticheat

import (
	"fmt"
	"time"

	"github.com/wfunc/tagserver/geo"
)

// ViolationType 违规类型
type ViolationType int

const (
	ViolationTeleport ViolationType = iota + 1
	ViolationSpeedHack
	ViolationLinearMovement
	ViolationStaticLocation
	ViolationRapidUpdates
	ViolationPoorAccuracy
	ViolationDistanceHack
)

var violationTypeNames = map[ViolationType]string{
	ViolationTeleport:       "teleport",
	ViolationSpeedHack:      "speed_hack",
	ViolationLinearMovement: "linear_movement",
	ViolationStaticLocation: "static_location",
	ViolationRapidUpdates:   "rapid_updates",
	ViolationPoorAccuracy:   "poor_accuracy",
	ViolationDistanceHack:   "distance_hack",
}

func (t ViolationType) String() string {
	if name, ok := violationTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("violation(%d)", int(t))
}

func (t ViolationType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ViolationType) UnmarshalText(text []byte) error {
	for typ, name := range violationTypeNames {
		if name == string(text) {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown violation type %q", text)
}

// Severity is ordered: comparisons like s >= SeverityMedium are meaningful.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

var severityNames = map[Severity]string{
	SeverityInfo:   "info",
	SeverityLow:    "low",
	SeverityMedium: "medium",
	SeverityHigh:   "high",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	for sev, name := range severityNames {
		if name == string(text) {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", text)
}

// Counts 是否计入 flag 阈值
func (s Severity) Counts() bool {
	return s >= SeverityMedium
}

// Violation is a plausibility judgment, never an error.
type Violation struct {
	Type      ViolationType `json:"type"`
	Severity  Severity      `json:"severity"`
	Detail    string        `json:"detail"`
	Timestamp time.Time     `json:"timestamp"`
	Location  geo.Point     `json:"location"`
}

// Sample 环形缓冲中的一条位置记录
type Sample struct {
	geo.Location
	// ReceivedAt is server arrival time; all speed math uses it.
	ReceivedAt time.Time
}
