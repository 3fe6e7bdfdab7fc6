package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repositories 仓库集合
type Repositories struct {
	db          *gorm.DB
	Prefix      *PrefixRepository
	Code        *CodeRepository
	Tree        *TreeRepository
	Structure   *StructureRepository
	TreeVersion *TreeVersionRepository
	Quantity    *QuantityRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Prefix:      NewPrefixRepository(db),
		Code:        NewCodeRepository(db),
		Tree:        NewTreeRepository(db),
		Structure:   NewStructureRepository(db),
		TreeVersion: NewTreeVersionRepository(db),
		Quantity:    NewQuantityRepository(db),
	}
}

func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// Transaction 在同一事务内执行 fn，fn 收到绑定事务的仓库集合
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// Ping 检查数据库连接
func (r *Repositories) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// NewID 生成 32 位 ID
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
