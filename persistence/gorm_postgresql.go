// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/tagserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormFromDB(db)
}

// NewGormFromDB wraps an already opened gorm handle and migrates the archive tables.
func NewGormFromDB(db *gorm.DB) (*GormPostgreSQL, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormGameRecord{},
		&models.GormGameParticipant{},
	)
}

// SaveGameRecord 保存归档，同一局重复写入时覆盖
func (p *GormPostgreSQL) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	row, participants, err := record.ToGorm()
	if err != nil {
		return err
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("save game %s: %w", record.ID, err)
		}
		if len(participants) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participants).Error; err != nil {
			return fmt.Errorf("save participants of %s: %w", record.ID, err)
		}
		return nil
	})
}

// LoadGameRecord 加载归档
func (p *GormPostgreSQL) LoadGameRecord(ctx context.Context, gameID string) (models.GameRecord, error) {
	var row models.GormGameRecord
	if err := p.db.WithContext(ctx).Where("id = ?", gameID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GameRecord{}, ErrRecordNotFound
		}
		return models.GameRecord{}, err
	}
	return models.FromGorm(row)
}

// ListPlayerGames 玩家历史，最新在前
func (p *GormPostgreSQL) ListPlayerGames(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error) {
	var rows []models.GormGameRecord
	err := p.db.WithContext(ctx).
		Joins("JOIN tag_game_participants ON tag_game_participants.game_id = tag_games.id").
		Where("tag_game_participants.player_id = ?", playerID).
		Order("tag_games.ended_at DESC").
		Limit(listLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]models.GameRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := models.FromGorm(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetPlayerStats 在数据库侧汇总玩家战绩
func (p *GormPostgreSQL) GetPlayerStats(ctx context.Context, playerID string) (models.PlayerStats, error) {
	stats := models.PlayerStats{PlayerID: playerID}

	err := p.db.WithContext(ctx).Raw(`
        SELECT
            COUNT(*) AS total_games,
            COALESCE(SUM(CASE WHEN g.winner_id = ? THEN 1 ELSE 0 END), 0) AS wins,
            COALESCE(SUM((pl->>'tag_count')::int), 0) AS total_tags,
            COALESCE(SUM((pl->>'final_survival_time_ms')::bigint), 0) AS total_survival_ms
        FROM tag_games g
        JOIN tag_game_participants tp ON tp.game_id = g.id
        CROSS JOIN LATERAL jsonb_array_elements(g.players) pl
        WHERE tp.player_id = ? AND pl->>'id' = ?`,
		playerID, playerID, playerID,
	).Scan(&stats).Error

	return stats, err
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
