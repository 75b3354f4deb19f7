package history

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// historyRecord 通话记录表
type historyRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"type:varchar(64);index;not null"`
	Role      string `gorm:"type:varchar(16);not null"`
	Text      string `gorm:"type:text"`
	CreatedAt time.Time
}

func (historyRecord) TableName() string {
	return "call_history"
}

type sqliteStore struct {
	db         *gorm.DB
	maxEntries int
	ownsDB     bool
}

// NewSQLite 在已有数据库句柄上建通话记录表
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	if err := db.AutoMigrate(&historyRecord{}); err != nil {
		return nil, fmt.Errorf("migrate call_history failed: %w", err)
	}
	return &sqliteStore{db: db, maxEntries: cfg.MaxEntries}, nil
}

// OpenSQLite 自己打开sqlite文件
func OpenSQLite(cfg Config) (Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.SQLite.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}
	store, err := NewSQLite(db, cfg)
	if err != nil {
		return nil, err
	}
	store.(*sqliteStore).ownsDB = true
	return store, nil
}

func (s *sqliteStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	record := &historyRecord{
		SessionID: sessionID,
		Role:      entry.Role,
		Text:      entry.Text,
		CreatedAt: ts,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		if s.maxEntries <= 0 {
			return nil
		}
		// 只保留最近maxEntries条
		var cutoff historyRecord
		err := tx.Where("session_id = ?", sessionID).
			Order("id DESC").
			Offset(s.maxEntries - 1).
			Limit(1).
			Take(&cutoff).Error
		if err != nil {
			return nil // 还没超上限
		}
		return tx.Where("session_id = ? AND id < ?", sessionID, cutoff.ID).
			Delete(&historyRecord{}).Error
	})
}

func (s *sqliteStore) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	query := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []historyRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	// 查询是倒序的，翻回时间先后
	entries := make([]Entry, len(records))
	for i, record := range records {
		entries[len(records)-1-i] = Entry{
			Role:      record.Role,
			Text:      record.Text,
			Timestamp: record.CreatedAt,
		}
	}
	return entries, nil
}

func (s *sqliteStore) Clear(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&historyRecord{}).Error
}

func (s *sqliteStore) Close(ctx context.Context) error {
	if !s.ownsDB {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
