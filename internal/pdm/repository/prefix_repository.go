package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/pdm/internal/pdm/apperr"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PrefixRepository struct {
	db *gorm.DB
}

func NewPrefixRepository(db *gorm.DB) *PrefixRepository {
	return &PrefixRepository{db: db}
}

// Create 创建前缀
func (r *PrefixRepository) Create(ctx context.Context, p *entity.Prefix) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// FindByID 根据ID查找前缀
func (r *PrefixRepository) FindByID(ctx context.Context, id string) (*entity.Prefix, error) {
	var p entity.Prefix
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("prefix", id)
		}
		return nil, err
	}
	return &p, nil
}

// FindByName 根据名称查找前缀
func (r *PrefixRepository) FindByName(ctx context.Context, name string) (*entity.Prefix, error) {
	var p entity.Prefix
	if err := r.db.WithContext(ctx).First(&p, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("prefix", name)
		}
		return nil, err
	}
	return &p, nil
}

// List 获取全部前缀
func (r *PrefixRepository) List(ctx context.Context) ([]entity.Prefix, error) {
	var list []entity.Prefix
	err := r.db.WithContext(ctx).Order("name ASC").Find(&list).Error
	return list, err
}

// FindForUpdate 行锁读取，必须在事务内调用
func (r *PrefixRepository) FindForUpdate(ctx context.Context, id string) (*entity.Prefix, error) {
	var p entity.Prefix
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("prefix", id)
		}
		return nil, err
	}
	return &p, nil
}

// Increment 计数器加一
func (r *PrefixRepository) Increment(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.Prefix{}).
		Where("id = ?", id).
		UpdateColumn("next_number", gorm.Expr("next_number + 1")).Error
}

// SetNextNumber 直接设置计数器
func (r *PrefixRepository) SetNextNumber(ctx context.Context, id string, next int64) error {
	res := r.db.WithContext(ctx).Model(&entity.Prefix{}).
		Where("id = ?", id).
		Update("next_number", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundf("prefix", id)
	}
	return nil
}
