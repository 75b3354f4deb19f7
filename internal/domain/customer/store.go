package customer

import (
	"errors"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
)

// Store 客户档案的SQLite存储
type Store struct {
	db     *gorm.DB
	logger *logging.Logger
}

// Config 存储配置
type Config struct {
	DSN  string // sqlite文件路径，空串用内存库
	Seed bool   // 首次启动时灌入演示客户
}

// NewStore 打开数据库并建表
func NewStore(config Config, logger *logging.Logger) (*Store, error) {
	dsn := config.DSN
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	} else {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindStorage, "customer.NewStore", "创建数据目录失败", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "customer.NewStore", "打开数据库失败", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "customer.NewStore", "建表失败", err)
	}

	store := &Store{db: db, logger: logger}
	if config.Seed {
		if err := store.seed(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// seed 空表时灌入演示客户，已有数据不动
func (s *Store) seed() error {
	var count int64
	if err := s.db.Model(&Record{}).Count(&count).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "customer.seed", "查询客户数量失败", err)
	}
	if count > 0 {
		return nil
	}
	if err := s.db.Create(&seedRecords).Error; err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "customer.seed", "写入演示客户失败", err)
	}
	s.logger.InfoTag("客户", "已灌入%d条演示客户档案", len(seedRecords))
	return nil
}

// Get 按客户编号取档案
func (s *Store) Get(customerID string) (*Record, error) {
	var record Record
	err := s.db.Where("customer_id = ?", customerID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, platformerrors.New(platformerrors.KindStorage, "customer.Get", "客户不存在: "+customerID)
	}
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "customer.Get", "查询客户失败", err)
	}
	return &record, nil
}

// List 返回全部客户，供前端下拉选择
func (s *Store) List() ([]Record, error) {
	var records []Record
	if err := s.db.Order("customer_id").Find(&records).Error; err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "customer.List", "查询客户列表失败", err)
	}
	return records, nil
}

// RecordContact 通话结束后累加联系次数
func (s *Store) RecordContact(customerID string) error {
	result := s.db.Model(&Record{}).
		Where("customer_id = ?", customerID).
		UpdateColumn("previous_contacts", gorm.Expr("previous_contacts + 1"))
	if result.Error != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "customer.RecordContact", "更新联系次数失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return platformerrors.New(platformerrors.KindStorage, "customer.RecordContact", "客户不存在: "+customerID)
	}
	return nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
