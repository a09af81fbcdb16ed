// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/tagserver/models"
)

// Database 归档存储接口
type Database interface {
	// SaveGameRecord is idempotent on record.ID.
	SaveGameRecord(ctx context.Context, record models.GameRecord) error
	LoadGameRecord(ctx context.Context, gameID string) (models.GameRecord, error)
	// ListPlayerGames returns the player's archived games, newest first.
	ListPlayerGames(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error)
	GetPlayerStats(ctx context.Context, playerID string) (models.PlayerStats, error)
	Close() error
}

// DefaultListLimit 历史列表默认条数
const DefaultListLimit = 20

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
	ErrClosed         = fmt.Errorf("database closed")
)

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
