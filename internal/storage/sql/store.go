package sql

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"otpinbox/backend/internal/domain"
	"otpinbox/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db *gorm.DB
}

// NewStore 根据驱动类型创建 SQL 存储
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	var dialector gorm.Dialector
	switch driverName {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	store := &Store{db: db}

	// 自动执行数据库迁移
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Address{},
		&domain.Message{},
		&domain.WebhookDeliveryRecord{},
		&domain.RateLimitEvent{},
	)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// ========== Address Repository ==========

// SaveAddress 保存收件地址
func (s *Store) SaveAddress(address *domain.Address) error {
	return s.db.Create(address).Error
}

// GetAddress 根据 ID 获取地址
func (s *Store) GetAddress(id string) (*domain.Address, error) {
	var address domain.Address
	if err := s.db.Where("id = ?", id).First(&address).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrAddressNotFound
		}
		return nil, err
	}
	return &address, nil
}

// GetAddressByAddress 根据完整地址获取地址
func (s *Store) GetAddressByAddress(addr string) (*domain.Address, error) {
	var address domain.Address
	if err := s.db.Where("address = ?", addr).First(&address).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrAddressNotFound
		}
		return nil, err
	}
	return &address, nil
}

// GetAddressByTokenHash 根据令牌哈希获取地址
func (s *Store) GetAddressByTokenHash(tokenHash string) (*domain.Address, error) {
	var address domain.Address
	if err := s.db.Where("token_hash = ?", tokenHash).First(&address).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrAddressNotFound
		}
		return nil, err
	}
	return &address, nil
}

// UpdateAddress 更新地址信息
func (s *Store) UpdateAddress(address *domain.Address) error {
	result := s.db.Save(address)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAddressNotFound
	}
	return nil
}

// DeleteAddress 删除地址，并级联删除名下邮件与投递记录
func (s *Store) DeleteAddress(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("address_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("address_id = ?", id).Delete(&domain.WebhookDeliveryRecord{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Address{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrAddressNotFound
		}
		return nil
	})
}

// IncrementMessageCount 调整地址的邮件计数
func (s *Store) IncrementMessageCount(id string, delta int) error {
	result := s.db.Model(&domain.Address{}).
		Where("id = ?", id).
		UpdateColumn("message_count", gorm.Expr("GREATEST(message_count + ?, 0)", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAddressNotFound
	}
	return nil
}

// TouchActivity 更新地址的最近活跃时间
func (s *Store) TouchActivity(id string, at time.Time) error {
	result := s.db.Model(&domain.Address{}).
		Where("id = ?", id).
		UpdateColumn("last_active_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAddressNotFound
	}
	return nil
}
