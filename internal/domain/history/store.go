package history

import (
	"context"
	"time"
)

// Entry 一条通话发言
type Entry struct {
	Role      string    `json:"role"` // user / assistant
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Store 通话记录存储，Recent按时间先后返回最近的若干条
type Store interface {
	Append(ctx context.Context, sessionID string, entry Entry) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	Clear(ctx context.Context, sessionID string) error
	Close(ctx context.Context) error
}

// Config 存储选择参数
type Config struct {
	Driver     string
	MaxEntries int // 每个会话保留的发言条数上限
	TTL        time.Duration
	Redis      *RedisConfig
	SQLite     *SQLiteConfig
}

// RedisConfig redis连接参数
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// SQLiteConfig sqlite文件参数
type SQLiteConfig struct {
	DSN string
}
