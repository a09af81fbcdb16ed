// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/tagserver/models"
)

// queryTimeout 调用方没有设置截止时间时使用
const queryTimeout = 5 * time.Second

// PostgreSQL 数据库实现，使用 lib/pq 原生 SQL
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tables: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS tag_game_archive (
            id VARCHAR(36) PRIMARY KEY,
            code VARCHAR(6) NOT NULL,
            host_id VARCHAR(255) NOT NULL,
            winner_id VARCHAR(255),
            player_ids TEXT[] NOT NULL,
            record JSONB NOT NULL,
            ended_at TIMESTAMPTZ,
            archived_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_tag_game_archive_player_ids ON tag_game_archive USING GIN (player_ids);
        CREATE INDEX IF NOT EXISTS idx_tag_game_archive_ended_at ON tag_game_archive(ended_at);
    `)
	return err
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}

func playerIDs(record models.GameRecord) []string {
	ids := make([]string, len(record.Players))
	for i, p := range record.Players {
		ids[i] = p.ID
	}
	return ids
}

// SaveGameRecord 保存归档 (UPSERT)
func (p *PostgreSQL) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	jsonData, err := json.Marshal(record)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
        INSERT INTO tag_game_archive (id, code, host_id, winner_id, player_ids, record, ended_at)
        VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
        ON CONFLICT (id)
        DO UPDATE SET winner_id = EXCLUDED.winner_id, player_ids = EXCLUDED.player_ids,
                      record = EXCLUDED.record, ended_at = EXCLUDED.ended_at
    `
	_, err = p.db.ExecContext(ctx, query,
		record.ID,
		record.Code,
		record.HostID,
		record.WinnerID,
		pq.Array(playerIDs(record)),
		jsonData,
		record.EndedAt)
	if err != nil {
		return fmt.Errorf("save game %s: %w", record.ID, err)
	}
	return nil
}

// LoadGameRecord 加载归档
func (p *PostgreSQL) LoadGameRecord(ctx context.Context, gameID string) (models.GameRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT record FROM tag_game_archive WHERE id = $1`, gameID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GameRecord{}, ErrRecordNotFound
		}
		return models.GameRecord{}, err
	}

	var record models.GameRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return models.GameRecord{}, fmt.Errorf("decode game %s: %w", gameID, err)
	}
	return record, nil
}

// ListPlayerGames 玩家历史，最新在前
func (p *PostgreSQL) ListPlayerGames(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
        SELECT record FROM tag_game_archive
        WHERE $1 = ANY(player_ids)
        ORDER BY ended_at DESC
        LIMIT $2`, playerID, listLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.GameRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var record models.GameRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetPlayerStats 汇总玩家战绩
func (p *PostgreSQL) GetPlayerStats(ctx context.Context, playerID string) (models.PlayerStats, error) {
	records, err := p.ListPlayerGames(ctx, playerID, int(^uint32(0)>>1))
	if err != nil {
		return models.PlayerStats{}, err
	}
	stats := models.PlayerStats{PlayerID: playerID}
	for _, r := range records {
		stats.Accumulate(r)
	}
	return stats, nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
