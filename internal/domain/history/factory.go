package history

import (
	"fmt"

	"gorm.io/gorm"
)

// 支持的存储驱动
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// defaultMaxEntries 未配置时每个会话保留的发言条数
const defaultMaxEntries = 20

// Dependencies 某些驱动需要的外部句柄
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New 按配置创建通话记录存储
func New(cfg Config, deps Dependencies) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg), nil
	case DriverSQLite:
		if deps.SQLiteDB != nil {
			return NewSQLite(deps.SQLiteDB, cfg)
		}
		if cfg.SQLite == nil || cfg.SQLite.DSN == "" {
			return nil, fmt.Errorf("sqlite driver requires database handle or dsn")
		}
		return OpenSQLite(cfg)
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported history store driver: %s", driver)
	}
}
