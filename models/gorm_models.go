// models/gorm_models.go
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// GormGameRecord 归档游戏表
type GormGameRecord struct {
	ID         string         `gorm:"primaryKey;size:36"`
	Code       string         `gorm:"index;size:6;not null"`
	HostID     string         `gorm:"index;not null"`
	WinnerID   string         `gorm:"index"`
	Status     string         `gorm:"size:16;not null"`
	Settings   datatypes.JSON `gorm:"type:jsonb;not null"`
	Players    datatypes.JSON `gorm:"type:jsonb;not null"`
	Tags       datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`
	DurationMs int64          `gorm:"default:0"`
	CreatedAt  time.Time      `gorm:"not null"`
	StartedAt  *time.Time
	EndedAt    *time.Time `gorm:"index"`
	// 完整记录，便于原样读回
	Record datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (GormGameRecord) TableName() string { return "tag_games" }

// GormGameParticipant 玩家与归档游戏的关联，按玩家查历史
type GormGameParticipant struct {
	GameID   string    `gorm:"primaryKey;size:36"`
	PlayerID string    `gorm:"primaryKey;index"`
	EndedAt  time.Time `gorm:"index"`
}

func (GormGameParticipant) TableName() string { return "tag_game_participants" }

// ToGorm builds the rows for one archived game.
func (r GameRecord) ToGorm() (GormGameRecord, []GormGameParticipant, error) {
	settings, err := json.Marshal(r.Settings)
	if err != nil {
		return GormGameRecord{}, nil, fmt.Errorf("marshal settings: %w", err)
	}
	players, err := json.Marshal(r.Players)
	if err != nil {
		return GormGameRecord{}, nil, fmt.Errorf("marshal players: %w", err)
	}
	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return GormGameRecord{}, nil, fmt.Errorf("marshal tags: %w", err)
	}
	full, err := json.Marshal(r)
	if err != nil {
		return GormGameRecord{}, nil, fmt.Errorf("marshal record: %w", err)
	}

	row := GormGameRecord{
		ID:         r.ID,
		Code:       r.Code,
		HostID:     r.HostID,
		WinnerID:   r.WinnerID,
		Status:     r.Status,
		Settings:   datatypes.JSON(settings),
		Players:    datatypes.JSON(players),
		Tags:       datatypes.JSON(tags),
		DurationMs: r.DurationMs,
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		Record:     datatypes.JSON(full),
	}

	var ended time.Time
	if r.EndedAt != nil {
		ended = *r.EndedAt
	}
	participants := make([]GormGameParticipant, len(r.Players))
	for i, p := range r.Players {
		participants[i] = GormGameParticipant{GameID: r.ID, PlayerID: p.ID, EndedAt: ended}
	}
	return row, participants, nil
}

// FromGorm decodes the stored record.
func FromGorm(row GormGameRecord) (GameRecord, error) {
	var rec GameRecord
	if err := json.Unmarshal(row.Record, &rec); err != nil {
		return GameRecord{}, fmt.Errorf("unmarshal game %s: %w", row.ID, err)
	}
	return rec, nil
}
